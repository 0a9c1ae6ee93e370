// Package fserr holds the error kinds shared by every layer of the volume.
package fserr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrNoSpace          = errors.New("not enough free sectors")
	ErrDirectoryFull    = errors.New("directory table full")
	ErrNameTooLong      = errors.New("file name too long")
	ErrPathTooLong      = errors.New("file path too long")
	ErrFileTooLarge     = errors.New("file too large")
	ErrNotDirectory     = errors.New("not a directory")
	ErrNotEmpty         = errors.New("directory not empty")
	ErrInvalidPath      = errors.New("invalid path")
	ErrBadHandle        = errors.New("bad file handle")
	ErrTooManyOpenFiles = errors.New("too many open files")
	ErrNotFormatted     = errors.New("volume not formatted")
)

// Fault is the panic value raised when an on-disk invariant is broken.
// The volume cannot be trusted after one, so it is never returned as an error.
type Fault struct {
	Msg string
}

func (f Fault) Error() string {
	return "volume corrupted: " + f.Msg
}

// Faultf panics with a Fault.
func Faultf(format string, args ...any) {
	panic(Fault{Msg: fmt.Sprintf(format, args...)})
}
