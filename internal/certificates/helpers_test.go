package certificates_test

import (
	"os"
	"path/filepath"
)

// filepathGlob lists the files under folder in the fixture's local store.
func filepathGlob(f *fixture, folder string) ([]os.DirEntry, error) {
	return os.ReadDir(filepath.Join(f.blobs.Root(), folder))
}
