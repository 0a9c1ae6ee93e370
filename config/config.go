// Package config holds the volume geometry and the runtime settings of the tool.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

const (
	SectorSize        = 128
	SectorsPerTrack   = 32
	NumTracks         = 32
	DefaultNumSectors = SectorsPerTrack * NumTracks

	// NumIndexSlots is the number of sector numbers held by one index block.
	NumIndexSlots = SectorSize / 4
	// NumDirect is the number of index block pointers in a file header,
	// after NumBytes and NumSectors.
	NumDirect   = (SectorSize - 2*4) / 4
	MaxFileSize = NumDirect * NumIndexSlots * SectorSize

	FileNameMaxLen = 9
	PathMaxLen     = 255
	NumDirEntries  = 64
	MaxOpenFiles   = 20

	FreeMapSector   = 0
	DirectorySector = 1

	DefaultDiskPath = "DISK_0"
)

// ResolveMode selects how the parent directory of a path is located.
type ResolveMode int

const (
	// ResolveByName takes the component just before the file name and
	// searches the whole tree depth-first for a directory with that name.
	ResolveByName ResolveMode = iota
	// ResolveByWalk follows the path one component at a time from the root.
	ResolveByWalk
)

func (m ResolveMode) String() string {
	switch m {
	case ResolveByName:
		return "name"
	case ResolveByWalk:
		return "walk"
	}
	return fmt.Sprintf("ResolveMode(%d)", int(m))
}

// ParseResolveMode maps the --resolve flag value to a ResolveMode.
func ParseResolveMode(s string) (ResolveMode, error) {
	switch s {
	case "", "name":
		return ResolveByName, nil
	case "walk":
		return ResolveByWalk, nil
	}
	return 0, fmt.Errorf("unknown resolve mode %q (want name or walk)", s)
}

type Config struct {
	DiskPath   string
	NumSectors int
	Resolve    ResolveMode
	Debug      bool
}

func Default() Config {
	return Config{
		DiskPath:   DefaultDiskPath,
		NumSectors: DefaultNumSectors,
		Resolve:    ResolveByName,
	}
}

// Validate checks that the geometry can hold the bitmap and root directory files.
func (c Config) Validate() error {
	if c.NumSectors <= 0 || c.NumSectors%8 != 0 {
		return fmt.Errorf("sector count %d must be a positive multiple of 8", c.NumSectors)
	}
	if c.NumSectors/8 > MaxFileSize {
		return fmt.Errorf("sector count %d too large for the bitmap file", c.NumSectors)
	}
	if c.NumSectors < MinSectors() {
		return fmt.Errorf("sector count %d too small, need at least %d", c.NumSectors, MinSectors())
	}
	if c.Resolve != ResolveByName && c.Resolve != ResolveByWalk {
		return errors.New("invalid resolve mode")
	}
	return nil
}

// Logger returns the file system trace logger.
func (c Config) Logger() *log.Logger {
	if !c.Debug {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[filesys] ", log.Lmsgprefix)
}

// DirectoryFileSize is the byte size of a serialised directory table.
func DirectoryFileSize() int {
	return DirEntrySize * NumDirEntries
}

// DirEntrySize is the on-disk size of one directory entry.
const DirEntrySize = 16

// MinSectors is the smallest volume that can be formatted: two headers, the
// root table with its index block, and a bitmap of at least one sector.
func MinSectors() int {
	dirSectors := divRoundUp(DirectoryFileSize(), SectorSize)
	return 2 + dirSectors + divRoundUp(dirSectors, NumIndexSlots) + 2
}

func divRoundUp(n, s int) int {
	return (n + s - 1) / s
}
