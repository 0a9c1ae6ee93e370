package filehdr

import (
	"bytes"
	"encoding/binary"

	"sectorfs/config"
)

// onDiskHeader is the sector image of a FileHeader.
type onDiskHeader struct {
	NumBytes    int32                   // 0x00~0x03: file length in bytes
	NumSectors  int32                   // 0x04~0x07: data sectors in use
	DataSectors [config.NumDirect]int32 // 0x08~0x7F: index block sectors, -1 when unused
}

// indexBlock is a sector of data sector numbers, -1 when unused.
type indexBlock [config.NumIndexSlots]int32

func emptyIndexBlock() indexBlock {
	var blk indexBlock
	for i := range blk {
		blk[i] = -1
	}
	return blk
}

func decode(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func encode(v any) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(config.SectorSize)
	if err := binary.Write(&out, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
