// Package disk provides synchronous whole-sector access to a volume.
package disk

import (
	"errors"
	"fmt"

	"sectorfs/config"
)

var ErrSectorRange = errors.New("sector out of range")

// Driver reads and writes single sectors. Buffers are exactly
// config.SectorSize bytes; implementations are not safe for concurrent use.
type Driver interface {
	ReadSector(sector int, buf []byte) error
	WriteSector(sector int, buf []byte) error
	NumSectors() int
	Close() error
}

func checkSector(d Driver, sector int, buf []byte) error {
	if sector < 0 || sector >= d.NumSectors() {
		return fmt.Errorf("sector %d: %w", sector, ErrSectorRange)
	}
	if len(buf) != config.SectorSize {
		return fmt.Errorf("sector %d: buffer is %d bytes, want %d", sector, len(buf), config.SectorSize)
	}
	return nil
}

// MemDriver keeps the whole volume in memory.
type MemDriver struct {
	data []byte
	n    int
}

func NewMemDriver(numSectors int) *MemDriver {
	return &MemDriver{
		data: make([]byte, numSectors*config.SectorSize),
		n:    numSectors,
	}
}

func (m *MemDriver) ReadSector(sector int, buf []byte) error {
	if err := checkSector(m, sector, buf); err != nil {
		return err
	}
	copy(buf, m.data[sector*config.SectorSize:])
	return nil
}

func (m *MemDriver) WriteSector(sector int, buf []byte) error {
	if err := checkSector(m, sector, buf); err != nil {
		return err
	}
	copy(m.data[sector*config.SectorSize:], buf)
	return nil
}

func (m *MemDriver) NumSectors() int { return m.n }

func (m *MemDriver) Close() error { return nil }

// Snapshot returns a copy of the raw volume.
func (m *MemDriver) Snapshot() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
