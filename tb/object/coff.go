package object

import (
	"encoding/binary"

	"github.com/c3lang/tilde-backend/tb"
)

// WriteCOFF64 assembles a Microsoft COFF object (.obj) for x64: section
// table, raw section data, a symbol table with one entry per function
// and extern/global, and a relocation table per patched section,
// following the same section layout idiom as the teacher's `buildPE64`
// (headers, then raw section data at file-aligned offsets) but producing
// a relocatable object rather than a loadable PE image — COFF objects
// carry no RVAs or optional header, only IMAGE_SECTION_HEADERs and
// symbol-relative relocations for the linker to resolve.
func WriteCOFF64(m *tb.Module, img *Image) []byte {
	const (
		fileHeaderSize = 20
		sectHeaderSize = 40
		symEntrySize   = 18
		relocEntrySize = 10
	)

	var strtab []byte // COFF long-name table; first 4 bytes are its own total size
	strtab = append(strtab, 0, 0, 0, 0)
	longName := func(name string) (short [8]byte, useTable bool) {
		if len(name) <= 8 {
			copy(short[:], name)
			return short, false
		}
		off := len(strtab)
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
		binary.LittleEndian.PutUint32(short[4:8], uint32(off))
		return short, true
	}

	type reloc struct {
		offset int
		symIdx int
		typ    uint16
	}
	type section struct {
		name        [8]byte
		data        []byte
		relocs      []reloc
		flags       uint32
		fileOffset  int
		relocOffset int
	}
	text := &section{data: img.Code, flags: 0x60500020}     // CNT_CODE|MEM_EXECUTE|MEM_READ
	rodata := &section{data: img.Rodata, flags: 0x40300040} // CNT_INITIALIZED_DATA|MEM_READ
	data := &section{data: img.Data, flags: 0xC0300040}     // +MEM_WRITE
	copy(text.name[:], ".text")
	copy(rodata.name[:], ".rdata")
	copy(data.name[:], ".data")
	sections := []*section{text, rodata, data}

	var symtab []byte
	symIdx := map[string]int{}
	nextSym := 0
	addSym := func(name string, sectionIdx int16, value uint32, external bool) {
		short, _ := longName(name)
		e := make([]byte, symEntrySize)
		copy(e, short[:])
		binary.LittleEndian.PutUint32(e[8:], value)
		binary.LittleEndian.PutUint16(e[12:], uint16(sectionIdx))
		typ := uint16(0x20) // function
		if sectionIdx == 0 {
			typ = 0
		}
		binary.LittleEndian.PutUint16(e[14:], typ)
		if external {
			e[16] = 2 // IMAGE_SYM_CLASS_EXTERNAL
		} else {
			e[16] = 3 // IMAGE_SYM_CLASS_STATIC
		}
		symtab = append(symtab, e...)
		symIdx[name] = nextSym
		nextSym++
	}
	for _, fn := range img.Funcs {
		addSym(fn.Name, 1, uint32(fn.Offset), true)
	}
	for _, gl := range img.Globals {
		addSym(gl.Name, 3, uint32(gl.Offset), true)
	}
	for _, name := range img.Externs {
		addSym(name, 0, 0, true)
	}

	for _, p := range m.Patches.CallPatches {
		if p.Target < 0 || p.Target >= len(img.Funcs) {
			continue
		}
		off := p.CodeOffset
		text.relocs = append(text.relocs, reloc{off, symIdx[img.Funcs[p.Target].Name], 0x04 /* REL32 */})
	}
	for _, p := range m.Patches.GlobalPatches {
		if p.Target < 0 || p.Target >= len(img.Globals) {
			continue
		}
		text.relocs = append(text.relocs, reloc{p.CodeOffset, symIdx[img.Globals[p.Target].Name], 0x04})
	}

	headerEnd := fileHeaderSize + len(sections)*sectHeaderSize
	cursor := headerEnd
	for _, s := range sections {
		s.fileOffset = cursor
		cursor += len(s.data)
	}
	for _, s := range sections {
		if len(s.relocs) == 0 {
			continue
		}
		s.relocOffset = cursor
		cursor += len(s.relocs) * relocEntrySize
	}
	symtabOffset := cursor
	cursor += len(symtab)
	strtabOffset := cursor
	binary.LittleEndian.PutUint32(strtab[0:], uint32(len(strtab)))
	cursor += len(strtab)

	out := make([]byte, cursor)
	putU16(out[0:], 0x8664) // IMAGE_FILE_MACHINE_AMD64
	putU16(out[2:], uint16(len(sections)))
	putU32(out[8:], uint32(symtabOffset))
	putU32(out[12:], uint32(nextSym))
	putU16(out[18:], 0) // characteristics

	for i, s := range sections {
		sh := out[fileHeaderSize+i*sectHeaderSize:]
		copy(sh[0:8], s.name[:])
		putU32(sh[16:], uint32(len(s.data)))
		putU32(sh[20:], uint32(s.fileOffset))
		if len(s.relocs) > 0 {
			putU32(sh[24:], uint32(s.relocOffset))
			putU16(sh[32:], uint16(len(s.relocs)))
		}
		putU32(sh[36:], s.flags)
		copy(out[s.fileOffset:], s.data)
		for j, r := range s.relocs {
			re := out[s.relocOffset+j*relocEntrySize:]
			putU32(re[0:], uint32(r.offset))
			putU32(re[4:], uint32(r.symIdx))
			putU16(re[8:], r.typ)
		}
	}
	copy(out[symtabOffset:], symtab)
	copy(out[strtabOffset:], strtab)

	return out
}
