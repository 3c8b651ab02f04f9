package object

import (
	"encoding/binary"
	"testing"

	"github.com/c3lang/tilde-backend/tb"
)

const imageFileMachineAMD64 = 0x8664

func TestWriteCOFF64HasAMD64MachineType(t *testing.T) {
	m := buildAddOne(t)
	if errs := m.Compile(tb.O1, stubOptimizer{}, stubBackend{}, 1); len(errs) > 0 {
		t.Fatalf("compile failed: %v", errs)
	}

	img := BuildImage(m)
	data := WriteCOFF64(m, img)
	if len(data) < 2 {
		t.Fatal("expected at least a file header")
	}
	machine := binary.LittleEndian.Uint16(data[:2])
	if machine != imageFileMachineAMD64 {
		t.Fatalf("expected IMAGE_FILE_MACHINE_AMD64 (%#x), got %#x", imageFileMachineAMD64, machine)
	}
}
