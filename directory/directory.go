// Package directory manages fixed-capacity tables of names.
//
// A table is stored as the contents of an ordinary file. Subdirectories are
// entries of type Dir whose header sector backs another table of the same
// capacity; nothing is cached, every descent reloads the child from disk.
package directory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"sectorfs/bitmap"
	"sectorfs/config"
	"sectorfs/disk"
	"sectorfs/filehdr"
	"sectorfs/fserr"
	"sectorfs/openfile"
)

type Directory struct {
	drv    disk.Driver
	table  []Entry
	sector int
}

// New returns an empty table with size slots.
func New(drv disk.Driver, size int) *Directory {
	return &Directory{drv: drv, table: make([]Entry, size), sector: -1}
}

// Load opens the table whose header is at sector.
func Load(drv disk.Driver, sector int) (*Directory, *openfile.OpenFile, error) {
	f, err := openfile.Open(drv, sector)
	if err != nil {
		return nil, nil, err
	}
	d := New(drv, config.NumDirEntries)
	if err = d.FetchFrom(f); err != nil {
		return nil, nil, err
	}
	return d, f, nil
}

// Sector is the header sector of the file the table was fetched from, or -1.
func (d *Directory) Sector() int { return d.sector }

func (d *Directory) byteSize() int { return len(d.table) * config.DirEntrySize }

func (d *Directory) FetchFrom(f *openfile.OpenFile) error {
	buf := make([]byte, d.byteSize())
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return fmt.Errorf("read directory %d: %w", f.Sector(), err)
	}
	raw := make([]onDiskEntry, len(d.table))
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, raw); err != nil {
		return fmt.Errorf("decode directory %d: %w", f.Sector(), err)
	}
	for i := range raw {
		d.table[i] = raw[i].toEntry()
	}
	d.sector = f.Sector()
	return nil
}

func (d *Directory) WriteBack(f *openfile.OpenFile) error {
	raw := make([]onDiskEntry, len(d.table))
	for i, e := range d.table {
		raw[i] = e.toDisk()
	}
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, raw); err != nil {
		return fmt.Errorf("encode directory %d: %w", f.Sector(), err)
	}
	if _, err := f.WriteAt(out.Bytes(), 0); err != nil {
		return fmt.Errorf("write directory %d: %w", f.Sector(), err)
	}
	return nil
}

// FindIndex returns the slot holding name in this table only, or -1.
func (d *Directory) FindIndex(name string) int {
	for i, e := range d.table {
		if e.InUse && e.Name == name {
			return i
		}
	}
	return -1
}

// Match is the result of Lookup.
type Match struct {
	Entry
	Index int
	// Parent is the header sector of the table holding the entry.
	Parent int
}

// Find returns the header sector for name. With recursive set, a name
// missing from this table is searched for depth-first through every
// subdirectory in table order; the first hit wins whatever its depth.
func (d *Directory) Find(name string, recursive bool) (int, error) {
	m, err := d.Lookup(name, recursive)
	if err != nil {
		return -1, err
	}
	return m.Sector, nil
}

// Lookup is Find returning the whole entry and where it was found.
func (d *Directory) Lookup(name string, recursive bool) (Match, error) {
	if i := d.FindIndex(name); i != -1 {
		return Match{Entry: d.table[i], Index: i, Parent: d.sector}, nil
	}
	if recursive {
		for _, e := range d.table {
			if !e.InUse || e.Type != Dir {
				continue
			}
			child, _, err := Load(d.drv, e.Sector)
			if err != nil {
				return Match{}, err
			}
			m, err := child.Lookup(name, true)
			if err == nil {
				return m, nil
			}
			if !errors.Is(err, fserr.ErrNotFound) {
				return Match{}, err
			}
		}
	}
	return Match{}, fserr.ErrNotFound
}

// Add claims the first free slot for name.
func (d *Directory) Add(name string, sector int, typ EntryType) error {
	if len(name) > config.FileNameMaxLen {
		return fserr.ErrNameTooLong
	}
	if d.FindIndex(name) != -1 {
		return fserr.ErrExists
	}
	for i := range d.table {
		if !d.table[i].InUse {
			d.table[i] = Entry{InUse: true, Type: typ, Name: name, Sector: sector}
			return nil
		}
	}
	return fserr.ErrDirectoryFull
}

func (d *Directory) Remove(name string) error {
	i := d.FindIndex(name)
	if i == -1 {
		return fserr.ErrNotFound
	}
	d.table[i].InUse = false
	return nil
}

// RemoveAll frees everything below this table: subdirectories first, then
// each entry's blocks and header sector. The emptied table is written to self.
func (d *Directory) RemoveAll(bm *bitmap.SectorBitmap, self *openfile.OpenFile) error {
	for i := range d.table {
		e := d.table[i]
		if !e.InUse {
			continue
		}
		if e.Type == Dir {
			child, f, err := Load(d.drv, e.Sector)
			if err != nil {
				return err
			}
			if err = child.RemoveAll(bm, f); err != nil {
				return err
			}
		}
		hdr := filehdr.New(d.drv)
		if err := hdr.FetchFrom(e.Sector); err != nil {
			return err
		}
		d.table[i].InUse = false
		if err := hdr.Deallocate(bm); err != nil {
			return err
		}
		if !bm.Test(e.Sector) {
			fserr.Faultf("header sector %d of %q not marked in use", e.Sector, e.Name)
		}
		bm.Clear(e.Sector)
	}
	return d.WriteBack(self)
}

// List writes one "[index] name D|F" line per entry, indented by level tabs.
func (d *Directory) List(w io.Writer, level int, recursive bool) error {
	indent := strings.Repeat("\t", level)
	for i, e := range d.table {
		if !e.InUse {
			continue
		}
		fmt.Fprintf(w, "%s[%d] %s %s\n", indent, i, e.Name, e.Type)
		if recursive && e.Type == Dir {
			child, _, err := Load(d.drv, e.Sector)
			if err != nil {
				return err
			}
			if err = child.List(w, level+1, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Print dumps every entry with its header and contents.
func (d *Directory) Print(w io.Writer) error {
	fmt.Fprint(w, "Directory contents:\n")
	hdr := filehdr.New(d.drv)
	for _, e := range d.table {
		if !e.InUse {
			continue
		}
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", e.Name, e.Sector)
		if err := hdr.FetchFrom(e.Sector); err != nil {
			return err
		}
		if err := hdr.Print(w); err != nil {
			return err
		}
	}
	fmt.Fprint(w, "\n")
	return nil
}

// Entries returns the in-use entries in table order.
func (d *Directory) Entries() []Entry {
	var out []Entry
	for _, e := range d.table {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}
