package sweep

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Resource is the shared compiler configuration every sweep iteration
// overwrites. Read reports exists false when the resource is absent.
type Resource interface {
	Read() (data []byte, exists bool, err error)
	Write(data []byte) error
	Remove() error
}

// ConfigIOError is returned when the shared configuration cannot be read or
// written. It aborts a sweep.
type ConfigIOError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (cie *ConfigIOError) Error() string {
	return fmt.Sprintf("config %s: %s", cie.Op, cie.Err)
}

// Unwrap provides access to the underlying error.
func (cie *ConfigIOError) Unwrap() error {
	return cie.Err
}

// IsConfigIOError checks if an error of type ConfigIOError exists.
func IsConfigIOError(err error) bool {
	var cie *ConfigIOError
	return errors.As(err, &cie)
}

// =============================================================================

// File is a configuration resource stored in a single file.
type File struct {
	Path string
}

// Read implements the Resource interface.
func (f File) Read() ([]byte, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write implements the Resource interface. The content is written to a
// temporary file and renamed so a reader never sees a partial file. The
// file keeps its permissions, and a new file is created with 0644.
func (f File) Write(data []byte) error {
	mode := fs.FileMode(0644)
	if info, err := os.Stat(f.Path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".config-*")
	if err != nil {
		return err
	}

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), f.Path)
}

// Remove implements the Resource interface.
func (f File) Remove() error {
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// =============================================================================

// Snapshot holds the content of a resource captured before a sweep mutates
// it. Release writes the content back.
type Snapshot struct {
	res      Resource
	data     []byte
	exists   bool
	released bool
}

// Acquire captures the current content of the resource.
func Acquire(res Resource) (*Snapshot, error) {
	data, exists, err := res.Read()
	if err != nil {
		return nil, &ConfigIOError{Op: "snapshot", Err: err}
	}

	s := Snapshot{
		res:    res,
		data:   bytes.Clone(data),
		exists: exists,
	}

	return &s, nil
}

// Bytes returns a copy of the captured content.
func (s *Snapshot) Bytes() []byte {
	return bytes.Clone(s.data)
}

// Release restores the captured content, removing the resource if it did
// not exist when acquired. Calls after the first successful one do nothing.
func (s *Snapshot) Release() error {
	if s.released {
		return nil
	}

	var err error
	switch s.exists {
	case true:
		err = s.res.Write(s.data)
	default:
		err = s.res.Remove()
	}

	if err != nil {
		return &ConfigIOError{Op: "restore", Err: err}
	}

	s.released = true
	return nil
}
