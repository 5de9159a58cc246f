package elfinfo

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// ErrNotELF is returned for files that do not start with the ELF magic.
// Callers skip such files silently.
var ErrNotELF = errors.New(errors.ErrNotELF, "not an ELF file")

var elfMagic = []byte(elf.ELFMAG)

const (
	dynstrName = ".dynstr"

	// longest string we are willing to read from a string table
	maxStringLen = 1 << 16
)

// fixed header offsets, keyed by address width
type layout struct {
	shoff      int64
	shoffSize  int
	shnum      int64
	shstrndx   int64
	shentsize  int64
	shAddr     int64
	shOffset   int64
	shSize     int64
	dynEntSize int64
}

var (
	layout32 = layout{
		shoff: 0x20, shoffSize: 4, shnum: 0x30, shstrndx: 0x32,
		shentsize: 0x28, shAddr: 0x0c, shOffset: 0x10, shSize: 0x14,
		dynEntSize: 8,
	}
	layout64 = layout{
		shoff: 0x28, shoffSize: 8, shnum: 0x3c, shstrndx: 0x3e,
		shentsize: 0x40, shAddr: 0x10, shOffset: 0x18, shSize: 0x20,
		dynEntSize: 16,
	}
)

type sectionHeader struct {
	index  int
	name   uint32
	typ    elf.SectionType
	addr   uint64
	offset uint64
	size   uint64
}

// Introspect reads the descriptor of the file at path. Non-regular files
// and files without the ELF magic yield ErrNotELF.
func Introspect(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot stat %s", path).
			WithDetail("path", path)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotELF
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot open %s", path).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	return Parse(path, f)
}

// IsELF reports whether the file at path starts with the ELF magic.
func IsELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	return hasMagic(f)
}

func hasMagic(r io.ReaderAt) bool {
	buf := make([]byte, len(elfMagic))
	if _, err := r.ReadAt(buf, 0); err != nil {
		return false
	}
	return bytes.Equal(buf, elfMagic)
}

// Parse decodes the ELF image readable through r. path is recorded on the
// descriptor and used in error details only.
func Parse(path string, r io.ReaderAt) (*Descriptor, error) {
	if !hasMagic(r) {
		return nil, ErrNotELF
	}

	p := &parser{r: r, path: path}

	ident, err := p.read(0, elf.EI_NIDENT)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{Path: path}

	var l layout
	switch elf.Class(ident[elf.EI_CLASS]) {
	case elf.ELFCLASS32:
		l = layout32
	case elf.ELFCLASS64:
		l = layout64
	default:
		return nil, p.malformed("unknown address width %d", ident[elf.EI_CLASS])
	}
	desc.Class = elf.Class(ident[elf.EI_CLASS])

	switch elf.Data(ident[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		p.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		p.order = binary.BigEndian
	default:
		return nil, p.malformed("unknown byte order %d", ident[elf.EI_DATA])
	}
	desc.Data = elf.Data(ident[elf.EI_DATA])

	machine, err := p.u16(0x12)
	if err != nil {
		return nil, err
	}
	desc.Machine = elf.Machine(machine)

	shoff, err := p.word(l.shoff, l.shoffSize)
	if err != nil {
		return nil, err
	}
	shnum, err := p.u16(l.shnum)
	if err != nil {
		return nil, err
	}
	shstrndx, err := p.u16(l.shstrndx)
	if err != nil {
		return nil, err
	}

	if shnum == 0 {
		// no section table, so nothing to link against
		return desc, nil
	}
	if shoff > math.MaxInt64/2 {
		return nil, p.malformed("section header offset %#x out of range", shoff)
	}

	var (
		needed, rpath, runpath []uint64
		shstrtab               *sectionHeader
		candidates             []sectionHeader
	)

	for i := 0; i < int(shnum); i++ {
		sh, err := p.section(int64(shoff)+int64(i)*l.shentsize, l, i)
		if err != nil {
			return nil, err
		}

		switch sh.typ {
		case elf.SHT_DYNAMIC:
			if err := p.dynamic(sh, l, &needed, &rpath, &runpath); err != nil {
				return nil, err
			}
		case elf.SHT_STRTAB:
			if i == int(shstrndx) {
				s := sh
				shstrtab = &s
			} else {
				candidates = append(candidates, sh)
			}
		}
	}

	if len(needed)+len(rpath)+len(runpath) == 0 {
		return desc, nil
	}

	if shstrtab == nil {
		return nil, p.malformed("section name table %d is missing", shstrndx)
	}

	var dynstr *sectionHeader
	for i := range candidates {
		at := int64(candidates[i].name) - int64(shstrtab.addr) + int64(shstrtab.offset)
		if at < 0 {
			continue
		}
		name, err := p.cstring(at)
		if err != nil {
			return nil, err
		}
		if name == dynstrName {
			dynstr = &candidates[i]
		}
	}
	if dynstr == nil {
		return nil, p.malformed("dynamic string table %s is missing", dynstrName)
	}

	resolve := func(ptrs []uint64) ([]string, error) {
		out := make([]string, 0, len(ptrs))
		for _, ptr := range ptrs {
			if ptr > math.MaxInt64/2 {
				return nil, p.malformed("string offset %#x out of range", ptr)
			}
			s, err := p.cstring(int64(dynstr.offset) + int64(ptr))
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	imports, err := resolve(needed)
	if err != nil {
		return nil, err
	}
	rp, err := resolve(rpath)
	if err != nil {
		return nil, err
	}
	rnp, err := resolve(runpath)
	if err != nil {
		return nil, err
	}

	desc.Imports = sortedSet(imports)
	desc.RPath = splitSearchPath(rp)
	desc.RunPath = splitSearchPath(rnp)
	return desc, nil
}

type parser struct {
	r     io.ReaderAt
	path  string
	order binary.ByteOrder
}

func (p *parser) malformed(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrMalformedBinary, format, args...).
		WithDetail("path", p.path)
}

func (p *parser) read(off int64, n int) ([]byte, error) {
	if off < 0 {
		return nil, p.malformed("negative offset %d", off)
	}
	buf := make([]byte, n)
	if _, err := p.r.ReadAt(buf, off); err != nil {
		return nil, errors.Wrapf(err, errors.ErrMalformedBinary, "truncated read of %d bytes at %#x", n, off).
			WithDetail("path", p.path)
	}
	return buf, nil
}

func (p *parser) u16(off int64) (uint16, error) {
	b, err := p.read(off, 2)
	if err != nil {
		return 0, err
	}
	return p.order.Uint16(b), nil
}

// word reads an address-sized unsigned value.
func (p *parser) word(off int64, size int) (uint64, error) {
	b, err := p.read(off, size)
	if err != nil {
		return 0, err
	}
	if size == 4 {
		return uint64(p.order.Uint32(b)), nil
	}
	return p.order.Uint64(b), nil
}

func (p *parser) section(at int64, l layout, index int) (sectionHeader, error) {
	rec, err := p.read(at, int(l.shentsize))
	if err != nil {
		return sectionHeader{}, err
	}
	sh := sectionHeader{
		index: index,
		name:  p.order.Uint32(rec[0:]),
		typ:   elf.SectionType(p.order.Uint32(rec[4:])),
	}
	if l.shoffSize == 4 {
		sh.addr = uint64(p.order.Uint32(rec[l.shAddr:]))
		sh.offset = uint64(p.order.Uint32(rec[l.shOffset:]))
		sh.size = uint64(p.order.Uint32(rec[l.shSize:]))
	} else {
		sh.addr = p.order.Uint64(rec[l.shAddr:])
		sh.offset = p.order.Uint64(rec[l.shOffset:])
		sh.size = p.order.Uint64(rec[l.shSize:])
	}
	if sh.offset > math.MaxInt64/2 || sh.size > math.MaxInt64/2 {
		return sectionHeader{}, p.malformed("section %d lies outside the addressable range", index)
	}
	return sh, nil
}

// dynamic walks dynamic entries until DT_NULL or the end of the section.
func (p *parser) dynamic(sh sectionHeader, l layout, needed, rpath, runpath *[]uint64) error {
	count := int64(sh.size) / l.dynEntSize
	for i := int64(0); i < count; i++ {
		rec, err := p.read(int64(sh.offset)+i*l.dynEntSize, int(l.dynEntSize))
		if err != nil {
			return err
		}

		var tag int64
		var val uint64
		if l.dynEntSize == 8 {
			tag = int64(int16(p.order.Uint16(rec[0:])))
			val = uint64(p.order.Uint32(rec[4:]))
		} else {
			tag = int64(int32(p.order.Uint32(rec[0:])))
			val = p.order.Uint64(rec[8:])
		}

		switch elf.DynTag(tag) {
		case elf.DT_NULL:
			return nil
		case elf.DT_NEEDED:
			*needed = append(*needed, val)
		case elf.DT_RPATH:
			*rpath = append(*rpath, val)
		case elf.DT_RUNPATH:
			*runpath = append(*runpath, val)
		}
	}
	return nil
}

// cstring reads a NUL terminated string starting at off.
func (p *parser) cstring(off int64) (string, error) {
	if off < 0 {
		return "", p.malformed("negative string offset %d", off)
	}
	var out []byte
	chunk := make([]byte, 64)
	for len(out) < maxStringLen {
		n, err := p.r.ReadAt(chunk, off+int64(len(out)))
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk[:n]...)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrMalformedBinary, "unterminated string at %#x", off).
				WithDetail("path", p.path)
		}
	}
	return "", p.malformed("string at %#x exceeds %d bytes", off, maxStringLen)
}
