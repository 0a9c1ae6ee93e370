package directory

import (
	"bytes"

	"sectorfs/config"
)

type EntryType uint8

const (
	File EntryType = iota
	Dir
)

func (t EntryType) String() string {
	if t == Dir {
		return "D"
	}
	return "F"
}

// Entry is one slot of a directory table.
type Entry struct {
	InUse  bool
	Type   EntryType
	Name   string
	Sector int
}

// onDiskEntry is the 16-byte table slot.
type onDiskEntry struct {
	InUse  uint8                           // 0x00: 1 when the slot holds a name
	Type   uint8                           // 0x01: 0 file, 1 directory
	Name   [config.FileNameMaxLen + 1]byte // 0x02~0x0B: NUL padded name
	Sector int32                           // 0x0C~0x0F: header sector
}

func (e Entry) toDisk() onDiskEntry {
	var d onDiskEntry
	if e.InUse {
		d.InUse = 1
	}
	d.Type = uint8(e.Type)
	copy(d.Name[:config.FileNameMaxLen], e.Name)
	d.Sector = int32(e.Sector)
	return d
}

func (d onDiskEntry) toEntry() Entry {
	name := d.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Entry{
		InUse:  d.InUse != 0,
		Type:   EntryType(d.Type),
		Name:   string(name),
		Sector: int(d.Sector),
	}
}
