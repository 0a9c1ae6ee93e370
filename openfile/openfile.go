// Package openfile is the byte stream over a file whose header sector is known.
package openfile

import (
	"errors"
	"fmt"
	"io"

	"sectorfs/config"
	"sectorfs/disk"
	"sectorfs/filehdr"
)

// OpenFile reads and writes a file's bytes at arbitrary offsets. Writes
// never extend the file past the length fixed at creation.
type OpenFile struct {
	drv    disk.Driver
	hdr    *filehdr.FileHeader
	sector int
	pos    int64
}

// Open loads the header at sector.
func Open(drv disk.Driver, sector int) (*OpenFile, error) {
	hdr := filehdr.New(drv)
	if err := hdr.FetchFrom(sector); err != nil {
		return nil, err
	}
	return &OpenFile{drv: drv, hdr: hdr, sector: sector}, nil
}

// Sector is the header sector the stream was opened on.
func (f *OpenFile) Sector() int { return f.sector }

func (f *OpenFile) Header() *filehdr.FileHeader { return f.hdr }

func (f *OpenFile) Length() int64 { return int64(f.hdr.FileLength()) }

// ReadAt implements io.ReaderAt, stopping at the end of the file.
func (f *OpenFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("openfile: negative offset")
	}
	length := f.Length()
	if off >= length {
		return 0, io.EOF
	}
	n := int64(len(p))
	if off+n > length {
		n = length - off
	}
	if err := f.transfer(p[:n], off, false); err != nil {
		return 0, err
	}
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// WriteAt implements io.WriterAt. Bytes beyond the file length are dropped
// and reported with io.ErrShortWrite.
func (f *OpenFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("openfile: negative offset")
	}
	length := f.Length()
	if off >= length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}
	n := int64(len(p))
	if off+n > length {
		n = length - off
	}
	if err := f.transfer(p[:n], off, true); err != nil {
		return 0, err
	}
	if n < int64(len(p)) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}

func (f *OpenFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *OpenFile) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker.
func (f *OpenFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.Length() + offset
	default:
		return 0, errors.New("openfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("openfile: negative position")
	}
	f.pos = abs
	return abs, nil
}

// transfer moves p to or from the file at off, sector by sector, reading
// partially covered sectors first so their other bytes survive a write.
func (f *OpenFile) transfer(p []byte, off int64, write bool) error {
	buf := make([]byte, config.SectorSize)
	for done := 0; done < len(p); {
		pos := int(off) + done
		sector, err := f.hdr.ByteToSector(pos)
		if err != nil {
			return err
		}
		if sector < 0 {
			return fmt.Errorf("openfile: offset %d has no sector", pos)
		}
		inSector := pos % config.SectorSize
		chunk := config.SectorSize - inSector
		if chunk > len(p)-done {
			chunk = len(p) - done
		}
		if !write || chunk < config.SectorSize {
			if err = f.drv.ReadSector(sector, buf); err != nil {
				return err
			}
		}
		if write {
			copy(buf[inSector:], p[done:done+chunk])
			if err = f.drv.WriteSector(sector, buf); err != nil {
				return err
			}
		} else {
			copy(p[done:done+chunk], buf[inSector:])
		}
		done += chunk
	}
	return nil
}
