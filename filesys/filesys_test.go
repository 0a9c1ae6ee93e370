package filesys

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sectorfs/config"
	"sectorfs/disk"
	"sectorfs/filehdr"
	"sectorfs/fserr"
)

// Sectors used by a freshly formatted 1024 sector volume: the two headers,
// the bitmap file (one data sector, one index block) and the root table
// (eight data sectors, one index block).
const formattedUsed = 2 + 2 + 9

func newFS(t *testing.T, mode config.ResolveMode) (*FileSystem, *disk.MemDriver) {
	t.Helper()
	drv := disk.NewMemDriver(config.DefaultNumSectors)
	cfg := config.Default()
	cfg.Resolve = mode
	fs, err := New(drv, cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs, drv
}

func freeSectors(t *testing.T, fs *FileSystem) int {
	t.Helper()
	free, err := fs.FreeSectors()
	require.NoError(t, err)
	return free
}

// fileCost is the sectors a file of size bytes holds: header, data, index.
func fileCost(size int) int {
	data, index := filehdr.SectorsFor(size)
	return 1 + data + index
}

func TestFormatAndMount(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	assert.Equal(t, config.DefaultNumSectors-formattedUsed, freeSectors(t, fs))

	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.Create("/a/f", 200))
	free := freeSectors(t, fs)

	mounted, err := New(drv, config.Default(), false)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultNumSectors, mounted.NumSectors())
	assert.Equal(t, free, freeSectors(t, mounted))

	var out bytes.Buffer
	require.NoError(t, mounted.List(&out, "/", true))
	assert.Equal(t, "[0] a D\n\t[0] f F\n", out.String())
}

func TestMountBlankVolume(t *testing.T) {
	_, err := New(disk.NewMemDriver(config.DefaultNumSectors), config.Default(), false)
	assert.ErrorIs(t, err, fserr.ErrNotFormatted)
}

func TestMountTruncatedVolume(t *testing.T) {
	big := disk.NewMemDriver(2 * config.DefaultNumSectors)
	cfg := config.Default()
	cfg.NumSectors = big.NumSectors()
	_, err := New(big, cfg, true)
	require.NoError(t, err)

	small := disk.NewMemDriver(config.DefaultNumSectors)
	buf := make([]byte, config.SectorSize)
	for s := 0; s < small.NumSectors(); s++ {
		require.NoError(t, big.ReadSector(s, buf))
		require.NoError(t, small.WriteSector(s, buf))
	}
	_, err = New(small, config.Default(), false)
	assert.ErrorIs(t, err, fserr.ErrNotFormatted)

	mounted, err := New(big, config.Default(), false)
	require.NoError(t, err)
	assert.Equal(t, big.NumSectors(), mounted.NumSectors())
}

func TestFormatRejectsBadGeometry(t *testing.T) {
	cfg := config.Default()
	cfg.NumSectors = 1000 + 4
	_, err := New(disk.NewMemDriver(2048), cfg, true)
	assert.Error(t, err)

	cfg.NumSectors = 2048
	_, err = New(disk.NewMemDriver(1024), cfg, true)
	assert.ErrorIs(t, err, fserr.ErrNoSpace)
}

func TestCreateDirectoryScenario(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	before := freeSectors(t, fs)

	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.Create("/a/f", 200))

	f, err := fs.Open("/a/f")
	require.NoError(t, err)
	assert.EqualValues(t, 200, f.Length())

	var out bytes.Buffer
	require.NoError(t, fs.List(&out, "/", true))
	assert.Equal(t, "[0] a D\n\t[0] f F\n", out.String())

	require.NoError(t, fs.Remove("/a", true))
	_, err = fs.Open("/a/f")
	assert.ErrorIs(t, err, fserr.ErrNotFound)

	root, _, err := fs.loadRoot()
	require.NoError(t, err)
	s, err := root.Find("a", true)
	assert.ErrorIs(t, err, fserr.ErrNotFound)
	assert.Equal(t, -1, s)
	assert.Equal(t, before, freeSectors(t, fs))
}

func TestCreateThenOpenReportsLength(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	for i, size := range []int{0, 1, 127, 128, 129, 33 * config.SectorSize, config.MaxFileSize / 4} {
		path := fmt.Sprintf("/f%d", i)
		require.NoError(t, fs.Create(path, size), path)
		f, err := fs.Open(path)
		require.NoError(t, err)
		assert.EqualValues(t, size, f.Length(), path)
	}
}

func TestCreateDuplicateHasNoSideEffects(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	require.NoError(t, fs.CreateDirectory("/d"))
	require.NoError(t, fs.Create("/d/f", 500))
	snapshot := drv.Snapshot()

	err := fs.Create("/d/f", 500)
	assert.ErrorIs(t, err, fserr.ErrExists)
	assert.Equal(t, snapshot, drv.Snapshot())

	err = fs.CreateDirectory("/d")
	assert.ErrorIs(t, err, fserr.ErrExists)
	assert.Equal(t, snapshot, drv.Snapshot())
}

func TestCreateNoSpaceHasNoSideEffects(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	require.NoError(t, fs.Create("/big", config.MaxFileSize))
	snapshot := drv.Snapshot()

	err := fs.Create("/more", 100*config.SectorSize)
	assert.ErrorIs(t, err, fserr.ErrNoSpace)
	assert.Equal(t, snapshot, drv.Snapshot())

	err = fs.Create("/huge", config.MaxFileSize+1)
	assert.ErrorIs(t, err, fserr.ErrFileTooLarge)
}

func TestCreateWithoutHeaderSectorHasNoSideEffects(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	require.NoError(t, fs.CreateDirectory("/d"))
	require.NoError(t, fs.Create("/big", config.MaxFileSize))
	rest := freeSectors(t, fs)
	data, index := filehdr.SectorsFor((rest - 2) * config.SectorSize)
	require.Equal(t, rest, 1+data+index)
	require.NoError(t, fs.Create("/rest", (rest-2)*config.SectorSize))
	require.Zero(t, freeSectors(t, fs))
	snapshot := drv.Snapshot()

	assert.ErrorIs(t, fs.Create("/d/x", 0), fserr.ErrNoSpace)
	assert.Equal(t, snapshot, drv.Snapshot())
	assert.ErrorIs(t, fs.CreateDirectory("/d/y"), fserr.ErrNoSpace)
	assert.Equal(t, snapshot, drv.Snapshot())
}

func TestCreateDirectoryFull(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	for i := 0; i < config.NumDirEntries; i++ {
		require.NoError(t, fs.Create(fmt.Sprintf("/f%d", i), 0))
	}
	snapshot := drv.Snapshot()
	err := fs.Create("/extra", 0)
	assert.ErrorIs(t, err, fserr.ErrDirectoryFull)
	assert.Equal(t, snapshot, drv.Snapshot())
}

func TestCreateRejectsBadPaths(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	snapshot := drv.Snapshot()

	assert.ErrorIs(t, fs.Create("/abcdefghij", 10), fserr.ErrNameTooLong)
	assert.ErrorIs(t, fs.Create(strings.Repeat("/abcdefgh", 29)+"/f", 10), fserr.ErrPathTooLong)
	assert.ErrorIs(t, fs.Create("noslash", 10), fserr.ErrInvalidPath)
	assert.ErrorIs(t, fs.CreateDirectory("/a/"), fserr.ErrInvalidPath)
	assert.ErrorIs(t, fs.Create("/nodir/f", 10), fserr.ErrNotFound)
	assert.ErrorIs(t, fs.CreateDirectory("/nodir/d"), fserr.ErrNotFound)
	assert.Equal(t, snapshot, drv.Snapshot())

	require.NoError(t, fs.Create("/file", 10))
	assert.ErrorIs(t, fs.Create("/file/f", 10), fserr.ErrNotDirectory)
}

func TestRemoveNonexistentHasNoSideEffects(t *testing.T) {
	fs, drv := newFS(t, config.ResolveByName)
	require.NoError(t, fs.CreateDirectory("/a"))
	snapshot := drv.Snapshot()

	assert.ErrorIs(t, fs.Remove("/nope", false), fserr.ErrNotFound)
	assert.ErrorIs(t, fs.Remove("/nope", true), fserr.ErrNotFound)
	assert.ErrorIs(t, fs.Remove("/a/nope", false), fserr.ErrNotFound)
	assert.Equal(t, snapshot, drv.Snapshot())
}

func TestRemoveSingleFile(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	require.NoError(t, fs.CreateDirectory("/a"))
	before := freeSectors(t, fs)
	require.NoError(t, fs.Create("/a/f", 5000))
	require.NoError(t, fs.Remove("/a/f", false))
	assert.Equal(t, before, freeSectors(t, fs))

	_, err := fs.Open("/a/f")
	assert.ErrorIs(t, err, fserr.ErrNotFound)
}

func TestRemoveNonEmptyDirectoryNeedsRecursive(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	before := freeSectors(t, fs)
	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.Create("/a/f", 10))

	assert.ErrorIs(t, fs.Remove("/a", false), fserr.ErrNotEmpty)
	require.NoError(t, fs.Remove("/a/f", false))
	require.NoError(t, fs.Remove("/a", false))
	assert.Equal(t, before, freeSectors(t, fs))
}

func TestRecursiveRemoveNestedSubtree(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.Create("/a/keep", 300))
	before := freeSectors(t, fs)

	require.NoError(t, fs.CreateDirectory("/a/b"))
	require.NoError(t, fs.CreateDirectory("/b/c"))
	require.NoError(t, fs.Create("/c/deep", 40*config.SectorSize))
	require.NoError(t, fs.Create("/b/f", 1))

	require.NoError(t, fs.Remove("/a/b", true))
	assert.Equal(t, before, freeSectors(t, fs))

	var out bytes.Buffer
	require.NoError(t, fs.List(&out, "/", true))
	assert.Equal(t, "[0] a D\n\t[0] keep F\n", out.String())
}

func TestRecursiveRemoveFindsNameBelowParent(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	before := freeSectors(t, fs)
	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.CreateDirectory("/a/b"))
	require.NoError(t, fs.Create("/b/g", 10))

	require.NoError(t, fs.Remove("/g", true))
	var out bytes.Buffer
	require.NoError(t, fs.List(&out, "/", true))
	assert.Equal(t, "[0] a D\n\t[0] b D\n", out.String())
	assert.Equal(t, before-2*fileCost(config.DirectoryFileSize()), freeSectors(t, fs))
}

func TestBitmapUsageMatchesLiveFiles(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	rng := rand.New(rand.NewSource(42))
	live := map[string]int{}

	for step := 0; step < 200; step++ {
		name := fmt.Sprintf("/f%d", rng.Intn(30))
		if _, ok := live[name]; ok && rng.Intn(2) == 0 {
			require.NoError(t, fs.Remove(name, false))
			delete(live, name)
		} else {
			size := rng.Intn(50 * config.SectorSize)
			err := fs.Create(name, size)
			if _, ok := live[name]; ok {
				require.ErrorIs(t, err, fserr.ErrExists)
			} else if err == nil {
				live[name] = size
			} else {
				require.ErrorIs(t, err, fserr.ErrNoSpace)
			}
		}

		used := formattedUsed
		for _, size := range live {
			used += fileCost(size)
		}
		require.Equal(t, config.DefaultNumSectors-used, freeSectors(t, fs), "step %d", step)
	}
}

func TestResolveModes(t *testing.T) {
	build := func(t *testing.T, mode config.ResolveMode) *FileSystem {
		fs, _ := newFS(t, mode)
		require.NoError(t, fs.CreateDirectory("/a"))
		require.NoError(t, fs.CreateDirectory("/x"))
		require.NoError(t, fs.CreateDirectory("/x/a"))
		require.NoError(t, fs.Create("/x/a/f", 1))
		return fs
	}

	t.Run("name", func(t *testing.T) {
		fs := build(t, config.ResolveByName)
		var out bytes.Buffer
		require.NoError(t, fs.List(&out, "/", true))
		assert.Equal(t, "[0] a D\n\t[0] f F\n[1] x D\n\t[0] a D\n", out.String())
	})

	t.Run("walk", func(t *testing.T) {
		fs := build(t, config.ResolveByWalk)
		var out bytes.Buffer
		require.NoError(t, fs.List(&out, "/", true))
		assert.Equal(t, "[0] a D\n[1] x D\n\t[0] a D\n\t\t[0] f F\n", out.String())

		out.Reset()
		require.NoError(t, fs.List(&out, "/x/a", false))
		assert.Equal(t, "[0] f F\n", out.String())
		_, err := fs.Open("/a/f")
		assert.ErrorIs(t, err, fserr.ErrNotFound)
	})
}

func TestListMissingDirectory(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	require.NoError(t, fs.Create("/f", 1))
	var out bytes.Buffer
	assert.ErrorIs(t, fs.List(&out, "/nope", false), fserr.ErrNotFound)
	assert.ErrorIs(t, fs.List(&out, "/f", false), fserr.ErrNotDirectory)
}

func TestPrint(t *testing.T) {
	fs, _ := newFS(t, config.ResolveByName)
	require.NoError(t, fs.Copy("/hello", strings.NewReader("hello"), 5))

	var out bytes.Buffer
	require.NoError(t, fs.Print(&out))
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "Bit map file header:\nFileHeader contents.  File size: 128."))
	assert.Contains(t, s, "Directory file header:\nFileHeader contents.  File size: 1024.")
	assert.Contains(t, s, "Bitmap set:\n0, 1, 2, 3,")
	assert.Contains(t, s, "Name: hello, Sector: ")
	assert.Contains(t, s, "File contents:\nhello\n")
}
