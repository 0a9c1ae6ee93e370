// Package filehdr implements the per-file header (inode).
//
// A header occupies exactly one sector. Its DataSectors name index blocks;
// each index block holds config.NumIndexSlots data sector numbers, so data
// sector N of a file lives in slot N%32 of index block DataSectors[N/32].
package filehdr

import (
	"fmt"
	"io"

	"sectorfs/bitmap"
	"sectorfs/config"
	"sectorfs/disk"
	"sectorfs/fserr"
)

type FileHeader struct {
	drv disk.Driver
	hdr onDiskHeader
}

func New(drv disk.Driver) *FileHeader {
	h := &FileHeader{drv: drv}
	h.hdr.NumBytes = -1
	h.hdr.NumSectors = -1
	for i := range h.hdr.DataSectors {
		h.hdr.DataSectors[i] = -1
	}
	return h
}

func divRoundUp(n, s int) int {
	return (n + s - 1) / s
}

// SectorsFor is the number of data and index sectors a file of byteLength needs.
func SectorsFor(byteLength int) (data, index int) {
	data = divRoundUp(byteLength, config.SectorSize)
	return data, divRoundUp(data, config.NumIndexSlots)
}

// Allocate sets up a fresh header for a file of byteLength bytes, taking its
// index and data sectors from bm. Index blocks are written to disk as they
// fill; the header itself is only written by WriteBack.
func (h *FileHeader) Allocate(bm *bitmap.SectorBitmap, byteLength int) error {
	if byteLength < 0 || byteLength > config.MaxFileSize {
		return fmt.Errorf("%d bytes: %w", byteLength, fserr.ErrFileTooLarge)
	}
	numSectors, numIndex := SectorsFor(byteLength)
	if bm.NumClear() < numSectors+numIndex {
		return fserr.ErrNoSpace
	}
	h.hdr.NumBytes = int32(byteLength)
	h.hdr.NumSectors = int32(numSectors)

	remaining := numSectors
	for j := 0; remaining > 0; j++ {
		sector := bm.FindAndSet()
		blk := emptyIndexBlock()
		for i := 0; i < config.NumIndexSlots && remaining > 0; i++ {
			blk[i] = int32(bm.FindAndSet())
			remaining--
		}
		if err := h.writeIndex(sector, &blk); err != nil {
			return err
		}
		h.hdr.DataSectors[j] = int32(sector)
	}
	return nil
}

// Deallocate returns every index and data sector of the file to bm.
func (h *FileHeader) Deallocate(bm *bitmap.SectorBitmap) error {
	for _, sector := range h.IndexBlocks() {
		blk, err := h.readIndex(sector)
		if err != nil {
			return err
		}
		for _, s := range blk {
			if s == -1 {
				continue
			}
			if !bm.Test(int(s)) {
				fserr.Faultf("data sector %d of index block %d not marked in use", s, sector)
			}
			bm.Clear(int(s))
		}
		if !bm.Test(sector) {
			fserr.Faultf("index block %d not marked in use", sector)
		}
		bm.Clear(sector)
	}
	return nil
}

// FetchFrom reads the header stored at sector.
func (h *FileHeader) FetchFrom(sector int) error {
	buf := make([]byte, config.SectorSize)
	if err := h.drv.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("fetch header %d: %w", sector, err)
	}
	if err := decode(buf, &h.hdr); err != nil {
		return fmt.Errorf("decode header %d: %w", sector, err)
	}
	return nil
}

// WriteBack stores the header at sector.
func (h *FileHeader) WriteBack(sector int) error {
	buf, err := encode(&h.hdr)
	if err != nil {
		return fmt.Errorf("encode header %d: %w", sector, err)
	}
	if err = h.drv.WriteSector(sector, buf); err != nil {
		return fmt.Errorf("write header %d: %w", sector, err)
	}
	return nil
}

// ByteToSector translates a byte offset within the file to the data sector
// holding it. It returns -1 when the offset has no sector behind it.
func (h *FileHeader) ByteToSector(offset int) (int, error) {
	target := offset / config.SectorSize
	if offset < 0 || target/config.NumIndexSlots >= config.NumDirect {
		return -1, nil
	}
	idx := h.hdr.DataSectors[target/config.NumIndexSlots]
	if idx == -1 {
		return -1, nil
	}
	blk, err := h.readIndex(int(idx))
	if err != nil {
		return -1, err
	}
	return int(blk[target%config.NumIndexSlots]), nil
}

func (h *FileHeader) FileLength() int { return int(h.hdr.NumBytes) }

func (h *FileHeader) NumSectors() int { return int(h.hdr.NumSectors) }

// IndexBlocks lists the index block sectors in pointer order.
func (h *FileHeader) IndexBlocks() []int {
	_, n := SectorsFor(h.FileLength())
	out := make([]int, 0, n)
	for _, s := range h.hdr.DataSectors {
		if s == -1 || len(out) == n {
			break
		}
		out = append(out, int(s))
	}
	return out
}

// DataSectors lists the file's data sectors in file order.
func (h *FileHeader) DataSectors() ([]int, error) {
	out := make([]int, 0, h.NumSectors())
	for _, sector := range h.IndexBlocks() {
		blk, err := h.readIndex(sector)
		if err != nil {
			return nil, err
		}
		for _, s := range blk {
			if s != -1 {
				out = append(out, int(s))
			}
		}
	}
	return out, nil
}

// Print dumps the block pointers and the file bytes, escaping anything
// that is not printable ASCII.
func (h *FileHeader) Print(w io.Writer) error {
	fmt.Fprintf(w, "FileHeader contents.  File size: %d.  File blocks:\n", h.FileLength())
	for _, sector := range h.IndexBlocks() {
		blk, err := h.readIndex(sector)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d:", sector)
		for _, s := range blk {
			if s != -1 {
				fmt.Fprintf(w, " %d", s)
			}
		}
		fmt.Fprint(w, "\n")
	}

	fmt.Fprint(w, "File contents:\n")
	data, err := h.DataSectors()
	if err != nil {
		return err
	}
	buf := make([]byte, config.SectorSize)
	k := 0
	for _, s := range data {
		if err = h.drv.ReadSector(s, buf); err != nil {
			return err
		}
		for j := 0; j < config.SectorSize && k < h.FileLength(); j, k = j+1, k+1 {
			if '\040' <= buf[j] && buf[j] <= '\176' {
				fmt.Fprintf(w, "%c", buf[j])
			} else {
				fmt.Fprintf(w, "\\%x", buf[j])
			}
		}
		fmt.Fprint(w, "\n")
	}
	return nil
}

func (h *FileHeader) readIndex(sector int) (indexBlock, error) {
	var blk indexBlock
	buf := make([]byte, config.SectorSize)
	if err := h.drv.ReadSector(sector, buf); err != nil {
		return blk, fmt.Errorf("read index block %d: %w", sector, err)
	}
	if err := decode(buf, &blk); err != nil {
		return blk, fmt.Errorf("decode index block %d: %w", sector, err)
	}
	return blk, nil
}

func (h *FileHeader) writeIndex(sector int, blk *indexBlock) error {
	buf, err := encode(blk)
	if err != nil {
		return fmt.Errorf("encode index block %d: %w", sector, err)
	}
	if err = h.drv.WriteSector(sector, buf); err != nil {
		return fmt.Errorf("write index block %d: %w", sector, err)
	}
	return nil
}
