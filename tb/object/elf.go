// Package object writes relocatable object files from a compiled
// tb.Module's code/rodata/data sections and patch tables (spec.md §6
// "Object file emission"). Linking/symbol resolution themselves are out
// of scope; these writers hand a standard linker something it already
// knows how to consume.
package object

import (
	"encoding/binary"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/x64"
)

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func alignUp(n, align int) int { return (n + align - 1) &^ (align - 1) }

// Image is the combined layout fed to a writer: concatenated function
// code with per-function offsets, rodata/data blobs, and every symbol
// name the linker needs to resolve a reference against.
type Image struct {
	Funcs   []FuncSym
	Externs []string
	Globals []GlobalSym
	Code    []byte
	Rodata  []byte
	Data    []byte
}

type FuncSym struct {
	Name   string
	Offset int
	Size   int
}

type GlobalSym struct {
	Name   string
	Offset int
	Size   int
}

// BuildImage concatenates every function's output into one text blob and
// the module's globals into one data blob, recording the offsets the
// object writers need to build symbol tables and relocations.
func BuildImage(m *tb.Module) *Image {
	img := &Image{}
	for _, e := range m.Externs {
		img.Externs = append(img.Externs, e.Name)
	}
	for _, f := range m.Functions {
		id := m.FunctionID(f)
		out := m.Outputs[id].(*x64.Output)
		off := len(img.Code)
		img.Funcs = append(img.Funcs, FuncSym{Name: f.Name, Offset: off, Size: len(out.Code)})
		img.Code = append(img.Code, out.Code...)
	}
	for _, gl := range m.Globals {
		off := len(img.Data)
		img.Data = append(img.Data, gl.Initial...)
		for len(img.Data) < off+gl.Size {
			img.Data = append(img.Data, 0)
		}
		img.Globals = append(img.Globals, GlobalSym{Name: gl.Name, Offset: off, Size: gl.Size})
	}
	return img
}

// elf64Reloc is one Elf64_Rela entry: (offset, symbol*256+type, addend).
type elf64Reloc struct {
	Offset int
	Sym    int
	Type   uint32
	Addend int64
}

const (
	rX8664PC32 = 2  // R_X86_64_PC32
	rX8664_32  = 10 // R_X86_64_32
)

// WriteELF64Rel assembles an ET_REL (relocatable) ELF64 x86-64 object:
// .text/.rodata/.data, a symbol table with one entry per function and
// extern/global reference, and a .rela.text carrying the module's call
// and global patch tables as PC32 relocations (spec.md §6's patch lists
// translated into the standard relocation vocabulary a linker expects,
// instead of the teacher's own buildELF64's baked-in absolute addresses
// for a single statically-linked executable).
func WriteELF64Rel(m *tb.Module, img *Image) []byte {
	var strtab []byte
	strtab = append(strtab, 0)
	nameOff := map[string]int{}
	addName := func(name string) int {
		if off, ok := nameOff[name]; ok {
			return off
		}
		off := len(strtab)
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
		nameOff[name] = off
		return off
	}

	// Symbol table: null entry, then one STT_FUNC per function (section 1,
	// .text), one STT_OBJECT per global (section 3, .data), one STT_NOTYPE
	// undefined entry per extern symbol.
	type sym struct {
		nameOff int
		shndx   uint16
		value   uint64
		size    uint64
		global  bool
	}
	var syms []sym
	funcSymIdx := map[string]int{}
	for _, fn := range img.Funcs {
		funcSymIdx[fn.Name] = len(syms) + 1
		syms = append(syms, sym{addName(fn.Name), 1, uint64(fn.Offset), uint64(fn.Size), true})
	}
	globalSymIdx := map[string]int{}
	for _, gl := range img.Globals {
		globalSymIdx[gl.Name] = len(syms) + 1
		syms = append(syms, sym{addName(gl.Name), 3, uint64(gl.Offset), uint64(gl.Size), true})
	}
	externSymIdx := map[string]int{}
	for _, name := range img.Externs {
		externSymIdx[name] = len(syms) + 1
		syms = append(syms, sym{addName(name), 0, 0, 0, true})
	}

	// Translate the module's patch tables into relocations against those
	// symbols. A call patch whose Target indexes a module-local function
	// becomes a PC32 relocation against that function's symbol; a call
	// patch with any other Target produces no relocation.
	var relocs []elf64Reloc
	for _, p := range m.Patches.CallPatches {
		base := img.Funcs[p.FunctionID].Offset
		if p.Target >= 0 && p.Target < len(img.Funcs) {
			relocs = append(relocs, elf64Reloc{base + p.CodeOffset, funcSymIdx[img.Funcs[p.Target].Name], rX8664PC32, -4})
		}
	}
	for _, p := range m.Patches.GlobalPatches {
		base := img.Funcs[p.FunctionID].Offset
		if p.Target >= 0 && p.Target < len(img.Globals) {
			relocs = append(relocs, elf64Reloc{base + p.CodeOffset, globalSymIdx[img.Globals[p.Target].Name], rX8664PC32, -4})
		}
	}
	for _, p := range m.Patches.ConstPatches {
		base := img.Funcs[p.FunctionID].Offset
		relocs = append(relocs, elf64Reloc{base + p.CodeOffset, 2 /* .rodata section symbol */, rX8664PC32, int64(p.Target) - 4})
	}

	const (
		ehdrSize    = 64
		shdrSize    = 64
		symEntry    = 24
		relaEntry   = 24
	)

	textOff := alignUp(ehdrSize, 16)
	rodataOff := alignUp(textOff+len(img.Code), 8)
	dataOff := alignUp(rodataOff+len(img.Rodata), 8)
	symtabOff := alignUp(dataOff+len(img.Data), 8)
	symtabSize := (len(syms) + 1) * symEntry
	strtabOff := symtabOff + symtabSize
	relaOff := alignUp(strtabOff+len(strtab), 8)
	relaSize := len(relocs) * relaEntry
	shstrtab := []byte("\x00.text\x00.rodata\x00.data\x00.symtab\x00.strtab\x00.rela.text\x00.shstrtab\x00")
	shstrtabOff := relaOff + relaSize
	shdrOff := alignUp(shstrtabOff+len(shstrtab), 8)
	const shdrCount = 8
	total := shdrOff + shdrCount*shdrSize

	out := make([]byte, total)
	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4], out[5], out[6] = 2, 1, 1
	putU16(out[16:], 1)  // e_type: ET_REL
	putU16(out[18:], 62) // e_machine: EM_X86_64
	putU32(out[20:], 1)
	putU64(out[40:], uint64(shdrOff))
	putU16(out[52:], ehdrSize)
	putU16(out[58:], shdrSize)
	putU16(out[60:], shdrCount)
	putU16(out[62:], 7) // e_shstrndx

	copy(out[textOff:], img.Code)
	copy(out[rodataOff:], img.Rodata)
	copy(out[dataOff:], img.Data)

	symtab := out[symtabOff : symtabOff+symtabSize]
	for i, s := range syms {
		off := (i + 1) * symEntry
		putU32(symtab[off:], uint32(s.nameOff))
		info := byte(0x10) // STB_GLOBAL<<4 | STT_NOTYPE
		if s.shndx == 1 {
			info = 0x12 // STB_GLOBAL<<4 | STT_FUNC
		} else if s.shndx == 3 {
			info = 0x11 // STB_GLOBAL<<4 | STT_OBJECT
		}
		symtab[off+4] = info
		putU16(symtab[off+6:], s.shndx)
		putU64(symtab[off+8:], s.value)
		putU64(symtab[off+16:], s.size)
	}
	copy(out[strtabOff:], strtab)

	rela := out[relaOff : relaOff+relaSize]
	for i, r := range relocs {
		off := i * relaEntry
		putU64(rela[off:], uint64(r.Offset))
		putU64(rela[off+8:], uint64(r.Sym)<<32|uint64(r.Type))
		binary.LittleEndian.PutUint64(rela[off+16:], uint64(r.Addend))
	}
	copy(out[shstrtabOff:], shstrtab)

	shdr := out[shdrOff:]
	writeShdr := func(idx int, nameOff int, typ, flags uint32, offset, size int, link, info, align, entsize int) {
		s := shdr[idx*shdrSize:]
		putU32(s[0:], uint32(nameOff))
		putU32(s[4:], typ)
		putU64(s[8:], uint64(flags))
		putU64(s[24:], uint64(offset))
		putU64(s[32:], uint64(size))
		putU32(s[40:], uint32(link))
		putU32(s[44:], uint32(info))
		putU64(s[48:], uint64(align))
		putU64(s[56:], uint64(entsize))
	}
	writeShdr(1, 1, 1, 0x6, textOff, len(img.Code), 0, 0, 16, 0)               // .text
	writeShdr(2, 7, 1, 0x2, rodataOff, len(img.Rodata), 0, 0, 8, 0)            // .rodata
	writeShdr(3, 15, 1, 0x3, dataOff, len(img.Data), 0, 0, 8, 0)               // .data
	writeShdr(4, 21, 2, 0, symtabOff, symtabSize, 5, len(syms)+1, 8, symEntry) // .symtab (sh_link=.strtab)
	writeShdr(5, 29, 3, 0, strtabOff, len(strtab), 0, 0, 1, 0)                 // .strtab
	writeShdr(6, 37, 4 /* SHT_RELA */, 0x40 /* SHF_INFO_LINK */, relaOff, relaSize, 4, 1, 8, relaEntry)
	writeShdr(7, 48, 3, 0, shstrtabOff, len(shstrtab), 0, 0, 1, 0) // .shstrtab

	return out
}
