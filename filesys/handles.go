package filesys

import (
	"errors"
	"fmt"
	"io"

	"sectorfs/bitmap"
	"sectorfs/config"
	"sectorfs/fserr"
	"sectorfs/openfile"
)

// TransferSize is the chunk used when copying a host stream into the volume.
const TransferSize = 10 * config.SectorSize

// OpenHandle opens path into the first free descriptor slot and returns its
// 1-based id.
func (fs *FileSystem) OpenHandle(path string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.open(path)
	if err != nil {
		return 0, err
	}
	for i := range fs.fileTable {
		if fs.fileTable[i] == nil {
			fs.fileTable[i] = f
			return i + 1, nil
		}
	}
	return 0, fserr.ErrTooManyOpenFiles
}

func (fs *FileSystem) handle(id int) (*openfile.OpenFile, error) {
	if id-1 < 0 || id-1 >= len(fs.fileTable) || fs.fileTable[id-1] == nil {
		return nil, fmt.Errorf("id %d: %w", id, fserr.ErrBadHandle)
	}
	return fs.fileTable[id-1], nil
}

// dropHandles closes every descriptor whose header sector is free in freeMap.
func (fs *FileSystem) dropHandles(freeMap *bitmap.SectorBitmap) {
	for i, f := range fs.fileTable {
		if f != nil && !freeMap.Test(f.Sector()) {
			fs.log.Printf("Closing descriptor %d of removed file at sector %d", i+1, f.Sector())
			fs.fileTable[i] = nil
		}
	}
}

// Write writes buf at the handle's current position.
func (fs *FileSystem) Write(id int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.handle(id)
	if err != nil {
		return -1, err
	}
	return f.Write(buf)
}

// Read fills buf from the handle's current position.
func (fs *FileSystem) Read(id int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.handle(id)
	if err != nil {
		return -1, err
	}
	return f.Read(buf)
}

// CloseHandle frees the descriptor slot.
func (fs *FileSystem) CloseHandle(id int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.handle(id); err != nil {
		return err
	}
	fs.fileTable[id-1] = nil
	return nil
}

// Copy creates path with size bytes and fills it from r. On failure the
// new file is removed again.
func (fs *FileSystem) Copy(path string, r io.Reader, size int) error {
	if err := fs.Create(path, size); err != nil {
		return err
	}
	id, err := fs.OpenHandle(path)
	if err == nil {
		err = fs.fill(id, r)
		fs.CloseHandle(id)
	}
	if err != nil {
		if rerr := fs.Remove(path, false); rerr != nil {
			fs.log.Printf("Cleanup of %s not success: %v", path, rerr)
		}
		return fmt.Errorf("copy to %s: %w", path, err)
	}
	return nil
}

func (fs *FileSystem) fill(id int, r io.Reader) error {
	buf := make([]byte, TransferSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := fs.Write(id, buf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// ReadFile returns the whole contents of path.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.open(path)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(io.NewSectionReader(f, 0, f.Length()))
}
