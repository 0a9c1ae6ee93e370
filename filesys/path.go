package filesys

import (
	"fmt"
	"strings"

	"sectorfs/config"
	"sectorfs/fserr"
)

// Segment separates path components.
const Segment = `/`

// GetFileName returns the text after the last separator.
func GetFileName(path string) string {
	return path[strings.LastIndex(path, Segment)+1:]
}

// GetDirectoryName returns the component just before the file name, which
// is the name of the immediate parent only. ok is false when the file sits
// directly under the root.
func GetDirectoryName(path string) (name string, ok bool) {
	parts := components(path)
	if len(parts) < 2 {
		return "", false
	}
	return parts[len(parts)-2], true
}

// CheckFileLength rejects names and paths over the fixed limits.
func CheckFileLength(path string) error {
	if len(GetFileName(path)) > config.FileNameMaxLen {
		return fserr.ErrNameTooLong
	}
	if len(path) > config.PathMaxLen {
		return fserr.ErrPathTooLong
	}
	return nil
}

// components splits path on the separator, skipping empty components.
func components(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return string(r) == Segment })
}

// checkPath validates a path naming a new or existing entry.
func checkPath(path string) error {
	if !strings.HasPrefix(path, Segment) || GetFileName(path) == "" {
		return fmt.Errorf("%q: %w", path, fserr.ErrInvalidPath)
	}
	if err := CheckFileLength(path); err != nil {
		return fmt.Errorf("%q: %w", path, err)
	}
	return nil
}
