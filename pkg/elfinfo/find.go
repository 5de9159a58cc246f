package elfinfo

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// FindBinaries returns every regular file under root that carries the ELF
// magic, in lexical order. Symlinks are not followed and not reported.
// A missing root yields an empty result.
func FindBinaries(root string) ([]string, error) {
	if _, err := os.Lstat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if IsELF(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot scan %s for binaries", root).
			WithDetail("root", root)
	}

	sort.Strings(out)
	return out, nil
}
