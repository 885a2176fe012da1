package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"quizcam-go/errcode"
)

// DirFS serves files from one host directory.
type DirFS struct {
	root string
}

func NewDirFS(root string) *DirFS { return &DirFS{root: root} }

func (d *DirFS) Root() string { return d.root }

func (d *DirFS) open(op, name string, flag int) (File, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(d.root, name), flag, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errcode.E{C: errcode.OpenFailed, Op: op, Msg: name, Err: err}
		}
		return nil, &errcode.E{C: errcode.IOError, Op: op, Msg: name, Err: err}
	}
	return f, nil
}

func (d *DirFS) Open(name string) (File, error) {
	return d.open("storage.open", name, os.O_RDONLY)
}

func (d *DirFS) OpenRW(name string) (File, error) {
	return d.open("storage.open_rw", name, os.O_RDWR)
}

func (d *DirFS) Create(name string) (File, error) {
	return d.open("storage.create", name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (d *DirFS) Append(name string) (File, error) {
	f, err := d.open("storage.append", name, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 2); err != nil {
		_ = f.Close()
		return nil, errcode.Wrap(errcode.IOError, "storage.append", err)
	}
	return f, nil
}

// Present reports whether the root directory exists. It doubles as the card
// detect line on host builds.
func (d *DirFS) Present() bool {
	st, err := os.Stat(d.root)
	return err == nil && st.IsDir()
}
