package testutil

import (
	"debug/elf"
	"encoding/binary"
	"path/filepath"
	"testing"
)

// ELF describes a synthetic ELF image. Only the pieces the introspector
// reads are emitted: the identification bytes, the machine field, a section
// header table with .dynstr, .dynamic and .shstrtab, and the string data.
type ELF struct {
	Class   elf.Class
	Order   binary.ByteOrder
	Machine elf.Machine
	Needed  []string
	RPath   string
	RunPath string

	// Static omits .dynamic and .dynstr entirely.
	Static bool
	// DynstrName overrides the name given to the dynamic string table.
	DynstrName string
	// StandardDynamic writes .dynamic entries as a full-width tag followed
	// by the value, the layout toolchains emit.
	StandardDynamic bool
}

// Amd64 returns a 64-bit little-endian x86-64 image description.
func Amd64(needed ...string) ELF {
	return ELF{Class: elf.ELFCLASS64, Order: binary.LittleEndian, Machine: elf.EM_X86_64, Needed: needed}
}

// I386 returns a 32-bit little-endian x86 image description.
func I386(needed ...string) ELF {
	return ELF{Class: elf.ELFCLASS32, Order: binary.LittleEndian, Machine: elf.EM_386, Needed: needed}
}

// WriteELF writes the image under dir/name with executable permissions.
func WriteELF(t *testing.T, dir, name string, e ELF) string {
	t.Helper()
	return CreateFileBytes(t, dir, name, e.Bytes(), 0755)
}

// WriteELFPath is WriteELF for an already joined path.
func WriteELFPath(t *testing.T, path string, e ELF) string {
	t.Helper()
	return WriteELF(t, filepath.Dir(path), filepath.Base(path), e)
}

type strtab struct {
	data []byte
}

func newStrtab() *strtab {
	return &strtab{data: []byte{0}}
}

func (s *strtab) add(str string) uint64 {
	off := uint64(len(s.data))
	s.data = append(s.data, str...)
	s.data = append(s.data, 0)
	return off
}

type section struct {
	name   uint64
	typ    elf.SectionType
	addr   uint64
	offset uint64
	size   uint64
	link   uint32
}

const (
	dynstrAddr = 0x400
	dynAddr    = 0x800
)

// Bytes renders the image.
func (e ELF) Bytes() []byte {
	is64 := e.Class == elf.ELFCLASS64
	order := e.Order
	if order == nil {
		order = binary.LittleEndian
	}

	ehsize, shentsize, dynentsize := 0x34, 0x28, 8
	if is64 {
		ehsize, shentsize, dynentsize = 0x40, 0x40, 16
	}

	shstr := newStrtab()
	dynstr := newStrtab()

	type dynEntry struct {
		tag int64
		val uint64
	}
	var dyn []dynEntry
	for _, n := range e.Needed {
		dyn = append(dyn, dynEntry{int64(elf.DT_NEEDED), dynstr.add(n)})
	}
	if e.RPath != "" {
		dyn = append(dyn, dynEntry{int64(elf.DT_RPATH), dynstr.add(e.RPath)})
	}
	if e.RunPath != "" {
		dyn = append(dyn, dynEntry{int64(elf.DT_RUNPATH), dynstr.add(e.RunPath)})
	}
	dyn = append(dyn, dynEntry{int64(elf.DT_NULL), 0})

	var dynBytes []byte
	for _, d := range dyn {
		buf := make([]byte, dynentsize)
		switch {
		case e.StandardDynamic && is64:
			order.PutUint64(buf[0:], uint64(d.tag))
			order.PutUint64(buf[8:], d.val)
		case e.StandardDynamic:
			order.PutUint32(buf[0:], uint32(int32(d.tag)))
			order.PutUint32(buf[4:], uint32(d.val))
		case is64:
			order.PutUint32(buf[0:], uint32(int32(d.tag)))
			order.PutUint64(buf[8:], d.val)
		default:
			order.PutUint16(buf[0:], uint16(int16(d.tag)))
			order.PutUint32(buf[4:], uint32(d.val))
		}
		dynBytes = append(dynBytes, buf...)
	}

	dynstrName := e.DynstrName
	if dynstrName == "" {
		dynstrName = ".dynstr"
	}

	sections := []section{{}}
	offset := uint64(ehsize)
	var body []byte

	if !e.Static {
		sections = append(sections, section{
			name: shstr.add(dynstrName), typ: elf.SHT_STRTAB,
			addr: dynstrAddr, offset: offset, size: uint64(len(dynstr.data)),
		})
		body = append(body, dynstr.data...)
		offset += uint64(len(dynstr.data))

		sections = append(sections, section{
			name: shstr.add(".dynamic"), typ: elf.SHT_DYNAMIC,
			addr: dynAddr, offset: offset, size: uint64(len(dynBytes)),
			link: uint32(len(sections) - 1),
		})
		body = append(body, dynBytes...)
		offset += uint64(len(dynBytes))
	}

	shstrIndex := len(sections)
	shstrName := shstr.add(".shstrtab")
	sections = append(sections, section{
		name: shstrName, typ: elf.SHT_STRTAB,
		offset: offset, size: uint64(len(shstr.data)),
	})
	body = append(body, shstr.data...)
	offset += uint64(len(shstr.data))

	// align the section header table
	for offset%8 != 0 {
		body = append(body, 0)
		offset++
	}
	shoff := offset

	hdr := make([]byte, ehsize)
	copy(hdr, elf.ELFMAG)
	hdr[elf.EI_CLASS] = byte(e.Class)
	if order == binary.BigEndian {
		hdr[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		hdr[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	hdr[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	order.PutUint16(hdr[0x10:], uint16(elf.ET_DYN))
	order.PutUint16(hdr[0x12:], uint16(e.Machine))
	order.PutUint32(hdr[0x14:], uint32(elf.EV_CURRENT))
	if is64 {
		order.PutUint64(hdr[0x28:], shoff)
		order.PutUint16(hdr[0x34:], uint16(ehsize))
		order.PutUint16(hdr[0x3a:], uint16(shentsize))
		order.PutUint16(hdr[0x3c:], uint16(len(sections)))
		order.PutUint16(hdr[0x3e:], uint16(shstrIndex))
	} else {
		order.PutUint32(hdr[0x20:], uint32(shoff))
		order.PutUint16(hdr[0x28:], uint16(ehsize))
		order.PutUint16(hdr[0x2e:], uint16(shentsize))
		order.PutUint16(hdr[0x30:], uint16(len(sections)))
		order.PutUint16(hdr[0x32:], uint16(shstrIndex))
	}

	out := append(hdr, body...)
	for _, s := range sections {
		rec := make([]byte, shentsize)
		order.PutUint32(rec[0:], uint32(s.name))
		order.PutUint32(rec[4:], uint32(s.typ))
		if is64 {
			order.PutUint64(rec[0x10:], s.addr)
			order.PutUint64(rec[0x18:], s.offset)
			order.PutUint64(rec[0x20:], s.size)
			order.PutUint32(rec[0x28:], s.link)
		} else {
			order.PutUint32(rec[0x0c:], uint32(s.addr))
			order.PutUint32(rec[0x10:], uint32(s.offset))
			order.PutUint32(rec[0x14:], uint32(s.size))
			order.PutUint32(rec[0x18:], s.link)
		}
		out = append(out, rec...)
	}
	return out
}
