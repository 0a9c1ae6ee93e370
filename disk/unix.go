//go:build unix

package disk

import (
	"fmt"

	"golang.org/x/sys/unix"

	"sectorfs/config"
)

// FileDriver stores the volume in a host image file, sector n at byte
// offset n*SectorSize.
type FileDriver struct {
	Fd int
	n  int
}

// OpenFileDriver opens or creates the image at path and sizes it to hold
// numSectors sectors.
func OpenFileDriver(path string, numSectors int) (*FileDriver, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open disk %s: %w", path, err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat disk %s: %w", path, err)
	}
	size := int64(numSectors) * config.SectorSize
	if st.Size < size {
		if err = unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("extend disk %s: %w", path, err)
		}
	}
	return &FileDriver{Fd: fd, n: numSectors}, nil
}

func (d *FileDriver) ReadSector(sector int, buf []byte) error {
	if err := checkSector(d, sector, buf); err != nil {
		return err
	}
	offsetByte := int64(sector) * config.SectorSize
	bytesRead, err := unix.Pread(d.Fd, buf, offsetByte)
	if err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	if bytesRead != len(buf) {
		return fmt.Errorf("read sector %d: short read of %d bytes", sector, bytesRead)
	}
	return nil
}

func (d *FileDriver) WriteSector(sector int, buf []byte) error {
	if err := checkSector(d, sector, buf); err != nil {
		return err
	}
	offsetByte := int64(sector) * config.SectorSize
	written, err := unix.Pwrite(d.Fd, buf, offsetByte)
	if err != nil {
		return fmt.Errorf("write sector %d: %w", sector, err)
	}
	if written != len(buf) {
		return fmt.Errorf("write sector %d: short write of %d bytes", sector, written)
	}
	return nil
}

func (d *FileDriver) NumSectors() int { return d.n }

func (d *FileDriver) Close() error {
	if err := unix.Fsync(d.Fd); err != nil {
		unix.Close(d.Fd)
		return err
	}
	return unix.Close(d.Fd)
}
