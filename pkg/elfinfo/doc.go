// Package elfinfo reads the dynamic-linking facts of an ELF file: address
// width, byte order, machine type, imported library names and the RPATH and
// RUNPATH search templates.
//
// The reader walks the section header table by hand. debug/elf is used for
// its constant and enum types only.
//
// Dynamic entries are decoded with the layout seen on the binaries this tool
// ships: a narrow tag, a padding field of the same width, then a wide value.
// For 32-bit files that is int16, uint16, uint32; for 64-bit files int32,
// uint32, uint64. Both add up to the nominal entry size, and on
// little-endian files the result agrees with the standard layout.
package elfinfo
