//go:build windows

package disk

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"

	"sectorfs/config"
)

type FileDriver struct {
	Handle windows.Handle
	n      int
}

func OpenFileDriver(path string, numSectors int) (*FileDriver, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ,
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("open disk %s: %w", path, err)
	}
	d := &FileDriver{Handle: handle, n: numSectors}

	var size windows.ByHandleFileInformation
	if err = windows.GetFileInformationByHandle(handle, &size); err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("stat disk %s: %w", path, err)
	}
	current := int64(size.FileSizeHigh)<<32 | int64(size.FileSizeLow)
	want := int64(numSectors) * config.SectorSize
	if current < want {
		if err = d.seek(want); err == nil {
			err = windows.SetEndOfFile(handle)
		}
		if err != nil {
			windows.CloseHandle(handle)
			return nil, fmt.Errorf("extend disk %s: %w", path, err)
		}
	}
	return d, nil
}

func (d *FileDriver) seek(offsetByte int64) error {
	high := int32(offsetByte >> 32)
	low := int32(offsetByte & 0xFFFFFFFF)
	_, err := windows.SetFilePointer(
		d.Handle,
		low,
		&high,
		windows.FILE_BEGIN,
	)
	return err
}

func (d *FileDriver) ReadSector(sector int, buf []byte) error {
	if err := checkSector(d, sector, buf); err != nil {
		return err
	}
	if err := d.seek(int64(sector) * config.SectorSize); err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	var bytesRead uint32
	if err := windows.ReadFile(d.Handle, buf, &bytesRead, nil); err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	if int(bytesRead) != len(buf) {
		return errors.New("read sector error")
	}
	return nil
}

func (d *FileDriver) WriteSector(sector int, buf []byte) error {
	if err := checkSector(d, sector, buf); err != nil {
		return err
	}
	if err := d.seek(int64(sector) * config.SectorSize); err != nil {
		return fmt.Errorf("write sector %d: %w", sector, err)
	}
	var written uint32
	if err := windows.WriteFile(d.Handle, buf, &written, nil); err != nil {
		return fmt.Errorf("write sector %d: %w", sector, err)
	}
	if int(written) != len(buf) {
		return errors.New("write sector error")
	}
	return nil
}

func (d *FileDriver) NumSectors() int { return d.n }

func (d *FileDriver) Close() error {
	if err := windows.FlushFileBuffers(d.Handle); err != nil {
		windows.CloseHandle(d.Handle)
		return err
	}
	return windows.CloseHandle(d.Handle)
}
