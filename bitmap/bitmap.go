// Package bitmap tracks which sectors of the volume are in use.
package bitmap

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"sectorfs/fserr"
)

// SectorBitmap has one bit per sector, set when the sector is in use.
// Its on-disk form is NumSectors/8 bytes, bit i in byte i/8 under mask 1<<(i%8).
type SectorBitmap struct {
	bits *bitset.BitSet
	n    int
}

func New(numSectors int) *SectorBitmap {
	return &SectorBitmap{bits: bitset.New(uint(numSectors)), n: numSectors}
}

func (b *SectorBitmap) Len() int { return b.n }

func (b *SectorBitmap) check(sector int) {
	if sector < 0 || sector >= b.n {
		fserr.Faultf("bitmap index %d outside [0, %d)", sector, b.n)
	}
}

// Mark sets the bit for sector.
func (b *SectorBitmap) Mark(sector int) {
	b.check(sector)
	b.bits.Set(uint(sector))
}

func (b *SectorBitmap) Clear(sector int) {
	b.check(sector)
	b.bits.Clear(uint(sector))
}

func (b *SectorBitmap) Test(sector int) bool {
	b.check(sector)
	return b.bits.Test(uint(sector))
}

// FindAndSet marks the lowest free sector and returns it, or -1 when the
// volume is full.
func (b *SectorBitmap) FindAndSet() int {
	i, ok := b.bits.NextClear(0)
	if !ok || int(i) >= b.n {
		return -1
	}
	b.bits.Set(i)
	return int(i)
}

func (b *SectorBitmap) NumClear() int {
	return b.n - int(b.bits.Count())
}

// ByteSize is the length of the serialised bitmap.
func (b *SectorBitmap) ByteSize() int {
	return (b.n + 7) / 8
}

// FetchFrom loads the bitmap from the start of r.
func (b *SectorBitmap) FetchFrom(r io.ReaderAt) error {
	buf := make([]byte, b.ByteSize())
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return fmt.Errorf("read bitmap: %w", err)
	}
	b.bits.ClearAll()
	for i := 0; i < b.n; i++ {
		if buf[i/8]&(1<<(i%8)) != 0 {
			b.bits.Set(uint(i))
		}
	}
	return nil
}

// WriteBack stores the bitmap at the start of w.
func (b *SectorBitmap) WriteBack(w io.WriterAt) error {
	buf := make([]byte, b.ByteSize())
	for i, ok := b.bits.NextSet(0); ok && int(i) < b.n; i, ok = b.bits.NextSet(i + 1) {
		buf[i/8] |= 1 << (i % 8)
	}
	if _, err := w.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write bitmap: %w", err)
	}
	return nil
}

// Print lists the sectors in use.
func (b *SectorBitmap) Print(w io.Writer) {
	fmt.Fprint(w, "Bitmap set:\n")
	for i, ok := b.bits.NextSet(0); ok && int(i) < b.n; i, ok = b.bits.NextSet(i + 1) {
		fmt.Fprintf(w, "%d, ", i)
	}
	fmt.Fprint(w, "\n")
}
