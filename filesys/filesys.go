// Package filesys maps path names onto the sectors of a volume.
//
// The free-sector bitmap and the root directory are ordinary files whose
// headers live at the well-known sectors 0 and 1. Both stay open for the
// life of a FileSystem. Mutating operations load private copies of the
// bitmap and the affected directory tables, change them, and write them
// back only once every step has succeeded: header first, then directory,
// then bitmap. A failed operation leaves the bitmap and directories as they
// were; there is no protection against a crash in the middle of a commit.
package filesys

import (
	"fmt"
	"io"
	"log"
	"sync"

	"sectorfs/bitmap"
	"sectorfs/config"
	"sectorfs/directory"
	"sectorfs/disk"
	"sectorfs/filehdr"
	"sectorfs/fserr"
	"sectorfs/openfile"
)

type FileSystem struct {
	mu         sync.Mutex
	drv        disk.Driver
	cfg        config.Config
	log        *log.Logger
	numSectors int

	freeMapFile   *openfile.OpenFile
	directoryFile *openfile.OpenFile

	fileTable [config.MaxOpenFiles]*openfile.OpenFile
}

// New mounts the volume on drv. With format set the volume is first
// initialised with an empty root directory and a bitmap of cfg.NumSectors
// sectors; otherwise the geometry is taken from the bitmap file on disk.
func New(drv disk.Driver, cfg config.Config, format bool) (*FileSystem, error) {
	fs := &FileSystem{drv: drv, cfg: cfg, log: cfg.Logger()}
	fs.log.Print("Initializing the file system.")
	if format {
		if err := fs.format(); err != nil {
			return nil, err
		}
		return fs, nil
	}

	var err error
	if fs.freeMapFile, err = openfile.Open(drv, config.FreeMapSector); err != nil {
		return nil, err
	}
	if fs.directoryFile, err = openfile.Open(drv, config.DirectorySector); err != nil {
		return nil, err
	}
	fs.numSectors = int(fs.freeMapFile.Length()) * 8
	if fs.numSectors == 0 || fs.directoryFile.Length() != int64(config.DirectoryFileSize()) {
		return nil, fserr.ErrNotFormatted
	}
	freeMap, err := fs.loadBitmap()
	if err != nil {
		return nil, err
	}
	if freeMap.Len() > drv.NumSectors() ||
		!freeMap.Test(config.FreeMapSector) || !freeMap.Test(config.DirectorySector) {
		return nil, fserr.ErrNotFormatted
	}
	return fs, nil
}

func (fs *FileSystem) format() error {
	if err := fs.cfg.Validate(); err != nil {
		return err
	}
	n := fs.cfg.NumSectors
	if n > fs.drv.NumSectors() {
		return fmt.Errorf("format %d sectors on a %d sector disk: %w", n, fs.drv.NumSectors(), fserr.ErrNoSpace)
	}
	fs.numSectors = n
	fs.log.Print("Formatting the file system.")

	freeMap := bitmap.New(n)
	root := directory.New(fs.drv, config.NumDirEntries)
	mapHdr := filehdr.New(fs.drv)
	dirHdr := filehdr.New(fs.drv)

	freeMap.Mark(config.FreeMapSector)
	freeMap.Mark(config.DirectorySector)

	if err := mapHdr.Allocate(freeMap, freeMap.ByteSize()); err != nil {
		return fmt.Errorf("allocate bitmap file: %w", err)
	}
	if err := dirHdr.Allocate(freeMap, config.DirectoryFileSize()); err != nil {
		return fmt.Errorf("allocate directory file: %w", err)
	}

	fs.log.Print("Writing headers back to disk.")
	if err := mapHdr.WriteBack(config.FreeMapSector); err != nil {
		return err
	}
	if err := dirHdr.WriteBack(config.DirectorySector); err != nil {
		return err
	}

	var err error
	if fs.freeMapFile, err = openfile.Open(fs.drv, config.FreeMapSector); err != nil {
		return err
	}
	if fs.directoryFile, err = openfile.Open(fs.drv, config.DirectorySector); err != nil {
		return err
	}

	fs.log.Print("Writing bitmap and directory back to disk.")
	if err = freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	return root.WriteBack(fs.directoryFile)
}

// Close releases the bitmap and root directory streams and every handle.
func (fs *FileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.freeMapFile = nil
	fs.directoryFile = nil
	for i := range fs.fileTable {
		fs.fileTable[i] = nil
	}
	return nil
}

// NumSectors is the size of the mounted volume.
func (fs *FileSystem) NumSectors() int { return fs.numSectors }

func (fs *FileSystem) loadBitmap() (*bitmap.SectorBitmap, error) {
	freeMap := bitmap.New(fs.numSectors)
	if err := freeMap.FetchFrom(fs.freeMapFile); err != nil {
		return nil, err
	}
	return freeMap, nil
}

func (fs *FileSystem) loadRoot() (*directory.Directory, *openfile.OpenFile, error) {
	root := directory.New(fs.drv, config.NumDirEntries)
	if err := root.FetchFrom(fs.directoryFile); err != nil {
		return nil, nil, err
	}
	return root, fs.directoryFile, nil
}

// openDir loads the table of a matched entry, which must be a directory.
func (fs *FileSystem) openDir(e directory.Entry) (*directory.Directory, *openfile.OpenFile, error) {
	if e.Type != directory.Dir {
		return nil, nil, fmt.Errorf("%s: %w", e.Name, fserr.ErrNotDirectory)
	}
	return directory.Load(fs.drv, e.Sector)
}

// resolveParent loads the table that the last component of path belongs in.
func (fs *FileSystem) resolveParent(path string) (*directory.Directory, *openfile.OpenFile, error) {
	root, rootFile, err := fs.loadRoot()
	if err != nil {
		return nil, nil, err
	}
	if fs.cfg.Resolve == config.ResolveByWalk {
		parts := components(path)
		return fs.walk(root, rootFile, parts[:len(parts)-1])
	}
	dirName, ok := GetDirectoryName(path)
	if !ok {
		return root, rootFile, nil
	}
	m, err := root.Lookup(dirName, true)
	if err != nil {
		return nil, nil, fmt.Errorf("directory %s: %w", dirName, err)
	}
	return fs.openDir(m.Entry)
}

// resolveDir loads the table named by path itself.
func (fs *FileSystem) resolveDir(path string) (*directory.Directory, *openfile.OpenFile, error) {
	root, rootFile, err := fs.loadRoot()
	if err != nil {
		return nil, nil, err
	}
	parts := components(path)
	if len(parts) == 0 {
		return root, rootFile, nil
	}
	if fs.cfg.Resolve == config.ResolveByWalk {
		return fs.walk(root, rootFile, parts)
	}
	name := parts[len(parts)-1]
	m, err := root.Lookup(name, true)
	if err != nil {
		return nil, nil, fmt.Errorf("directory %s: %w", name, err)
	}
	return fs.openDir(m.Entry)
}

func (fs *FileSystem) walk(cur *directory.Directory, curFile *openfile.OpenFile, parts []string) (*directory.Directory, *openfile.OpenFile, error) {
	for _, name := range parts {
		m, err := cur.Lookup(name, false)
		if err != nil {
			return nil, nil, fmt.Errorf("directory %s: %w", name, err)
		}
		if cur, curFile, err = fs.openDir(m.Entry); err != nil {
			return nil, nil, err
		}
	}
	return cur, curFile, nil
}

// Create makes a file of initialSize bytes. Files never grow afterwards.
func (fs *FileSystem) Create(path string, initialSize int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.log.Printf("Creating file %s size %d", path, initialSize)
	if err := fs.create(path, initialSize, directory.File); err != nil {
		fs.log.Printf("File creation not success: %v", err)
		return err
	}
	return nil
}

// CreateDirectory makes an empty directory table at path.
func (fs *FileSystem) CreateDirectory(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.log.Printf("Creating directory %s", path)
	if err := fs.create(path, config.DirectoryFileSize(), directory.Dir); err != nil {
		fs.log.Printf("Directory creation not success: %v", err)
		return err
	}
	return nil
}

func (fs *FileSystem) create(path string, size int, typ directory.EntryType) error {
	if err := checkPath(path); err != nil {
		return err
	}
	fileName := GetFileName(path)
	parent, parentFile, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if parent.FindIndex(fileName) != -1 {
		return fmt.Errorf("%s: %w", path, fserr.ErrExists)
	}

	freeMap, err := fs.loadBitmap()
	if err != nil {
		return err
	}
	sector := freeMap.FindAndSet()
	if sector == -1 {
		return fmt.Errorf("header for %s: %w", path, fserr.ErrNoSpace)
	}
	if err = parent.Add(fileName, sector, typ); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	hdr := filehdr.New(fs.drv)
	if err = hdr.Allocate(freeMap, size); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err = hdr.WriteBack(sector); err != nil {
		return err
	}
	if typ == directory.Dir {
		table, err := openfile.Open(fs.drv, sector)
		if err != nil {
			return err
		}
		if err = directory.New(fs.drv, config.NumDirEntries).WriteBack(table); err != nil {
			return err
		}
	}
	if err = parent.WriteBack(parentFile); err != nil {
		return err
	}
	if err = freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	fs.log.Printf("Created %s at sector %d", path, sector)
	return nil
}

// Open returns a stream over the file at path.
func (fs *FileSystem) Open(path string) (*openfile.OpenFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.open(path)
}

func (fs *FileSystem) open(path string) (*openfile.OpenFile, error) {
	fs.log.Printf("Opening file %s", path)
	if err := checkPath(path); err != nil {
		return nil, err
	}
	parent, _, err := fs.resolveParent(path)
	if err != nil {
		return nil, err
	}
	fileName := GetFileName(path)
	sector, err := parent.Find(fileName, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return openfile.Open(fs.drv, sector)
}

// Remove deletes the entry at path. Without recursive, a directory must be
// empty. With recursive, the target is looked up anywhere below its parent
// and its whole subtree is freed.
func (fs *FileSystem) Remove(path string, recursive bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.log.Printf("Removing %s recursive=%t", path, recursive)
	if err := checkPath(path); err != nil {
		return err
	}
	fileName := GetFileName(path)
	parent, parentFile, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	m, err := parent.Lookup(fileName, recursive)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	owner, ownerFile := parent, parentFile
	if m.Parent != parent.Sector() {
		if owner, ownerFile, err = directory.Load(fs.drv, m.Parent); err != nil {
			return err
		}
	}

	freeMap, err := fs.loadBitmap()
	if err != nil {
		return err
	}
	if m.Type == directory.Dir {
		child, childFile, err := directory.Load(fs.drv, m.Sector)
		if err != nil {
			return err
		}
		if !recursive && len(child.Entries()) > 0 {
			return fmt.Errorf("%s: %w", path, fserr.ErrNotEmpty)
		}
		if err = child.RemoveAll(freeMap, childFile); err != nil {
			return err
		}
	}

	hdr := filehdr.New(fs.drv)
	if err = hdr.FetchFrom(m.Sector); err != nil {
		return err
	}
	if err = hdr.Deallocate(freeMap); err != nil {
		return err
	}
	if !freeMap.Test(m.Sector) {
		fserr.Faultf("header sector %d of %s not marked in use", m.Sector, path)
	}
	freeMap.Clear(m.Sector)
	if err = owner.Remove(fileName); err != nil {
		return err
	}

	if err = owner.WriteBack(ownerFile); err != nil {
		return err
	}
	if err = freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	fs.dropHandles(freeMap)
	return nil
}

// List writes the table named by path, descending into subdirectories
// when recursive is set.
func (fs *FileSystem) List(w io.Writer, path string, recursive bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, _, err := fs.resolveDir(path)
	if err != nil {
		return err
	}
	return dir.List(w, 0, recursive)
}

// Print dumps both system file headers, the bitmap and the root directory.
func (fs *FileSystem) Print(w io.Writer) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fmt.Fprint(w, "Bit map file header:\n")
	if err := fs.freeMapFile.Header().Print(w); err != nil {
		return err
	}
	fmt.Fprint(w, "Directory file header:\n")
	if err := fs.directoryFile.Header().Print(w); err != nil {
		return err
	}
	freeMap, err := fs.loadBitmap()
	if err != nil {
		return err
	}
	freeMap.Print(w)
	root, _, err := fs.loadRoot()
	if err != nil {
		return err
	}
	return root.Print(w)
}

// FreeSectors reports how many sectors are unallocated.
func (fs *FileSystem) FreeSectors() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	freeMap, err := fs.loadBitmap()
	if err != nil {
		return 0, err
	}
	return freeMap.NumClear(), nil
}
