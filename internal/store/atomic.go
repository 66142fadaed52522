package store

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
)

// WriteFileAtomic replaces name with data through a temp file in the same
// directory, so readers see either the old record or the new one.
func WriteFileAtomic(fsys billy.Filesystem, name string, data []byte) (err error) {
	if fsys == nil {
		return fmt.Errorf("store: nil filesystem")
	}
	dir := path.Dir(name)
	if dir != "." && dir != "/" {
		if errMkdir := fsys.MkdirAll(dir, 0o755); errMkdir != nil {
			return errMkdir
		}
	}

	tmp, err := fsys.TempFile(dir, "."+path.Base(name)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmpName)
		}
	}()

	if _, errWrite := tmp.Write(data); errWrite != nil {
		_ = tmp.Close()
		return errWrite
	}
	if errClose := tmp.Close(); errClose != nil {
		return errClose
	}
	return fsys.Rename(tmpName, name)
}

// RemoveIfExists deletes name and treats a missing file as success.
func RemoveIfExists(fsys billy.Filesystem, name string) error {
	if fsys == nil {
		return fmt.Errorf("store: nil filesystem")
	}
	if errRemove := fsys.Remove(name); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
		return errRemove
	}
	return nil
}

// Exists reports whether name is present.
func Exists(fsys billy.Filesystem, name string) (bool, error) {
	if fsys == nil {
		return false, fmt.Errorf("store: nil filesystem")
	}
	_, errStat := fsys.Stat(name)
	switch {
	case errStat == nil:
		return true, nil
	case errors.Is(errStat, os.ErrNotExist):
		return false, nil
	default:
		return false, errStat
	}
}
