// Package storage is the filesystem seen by the camera and the question
// index: a small FS interface, a directory-backed and an in-memory
// implementation, and a Volume that gates access on media presence.
package storage

import (
	"io"

	"quizcam-go/errcode"
)

// File is an open file with a single read/write position.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// FS opens files by bare name.
type FS interface {
	// Open opens an existing file for reading.
	Open(name string) (File, error)
	// OpenRW opens an existing file for reading and writing.
	OpenRW(name string) (File, error)
	// Create creates or truncates a file for reading and writing.
	Create(name string) (File, error)
	// Append opens or creates a file with the position at its end.
	Append(name string) (File, error)
}

// Tell returns the current position of f.
func Tell(f File) (int64, error) {
	return f.Seek(0, io.SeekCurrent)
}

// Size returns the length of f, leaving the position unchanged.
func Size(f File) (int64, error) {
	cur, err := Tell(f)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// ValidName rejects empty names and anything that could leave the root.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." {
		return &errcode.E{C: errcode.InvalidParams, Op: "storage.name", Msg: "empty"}
	}
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '/', '\\', 0:
			return &errcode.E{C: errcode.InvalidParams, Op: "storage.name", Msg: name}
		}
	}
	return nil
}
