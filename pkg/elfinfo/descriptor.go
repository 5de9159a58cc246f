package elfinfo

import (
	"debug/elf"
	"encoding/binary"
	"path/filepath"
	"sort"
	"strings"
)

// Descriptor is the parsed view of one ELF file. A Descriptor is never
// mutated after Parse returns it; re-examining a file produces a new one.
type Descriptor struct {
	Path    string
	Class   elf.Class
	Data    elf.Data
	Machine elf.Machine

	// Imports holds DT_NEEDED names, sorted and de-duplicated.
	Imports []string
	// RPath and RunPath hold the search templates in file order with
	// duplicates removed. Templates may still contain $ORIGIN.
	RPath   []string
	RunPath []string
}

// ByteOrder returns the byte order declared in the identification bytes.
func (d *Descriptor) ByteOrder() binary.ByteOrder {
	if d.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Origin is the directory $ORIGIN expands to for this file.
func (d *Descriptor) Origin() string {
	return filepath.Dir(d.Path)
}

// Compatible reports whether a library described by other can satisfy an
// import of d. Only the machine type is compared.
func (d *Descriptor) Compatible(other *Descriptor) bool {
	return other != nil && d.Machine == other.Machine
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// splitSearchPath splits colon separated search path strings into ordered,
// unique, non-empty entries.
func splitSearchPath(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, entry := range strings.Split(v, ":") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, ok := seen[entry]; ok {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}
