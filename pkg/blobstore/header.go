/*
Package blobstore implements the Blob Repository (spec §4.2, C2): an
append-only data file plus a fixed-size header index file, four
independent locks (index-read, index-write, data-read, data-write) so a
reader never blocks a writer on the other file.
*/
package blobstore

import (
	"encoding/binary"
)

// headerSize is the bit-exact on-disk header layout from spec §6: 8-byte
// stamp, 8-byte offset, 4-byte size, 4-byte prev, two 4-byte app notes.
const headerSize = 8 + 8 + 4 + 4 + 4 + 4

// header is one blob's fixed-size index record.
type header struct {
	Stamp  int64 // wall-clock stamp, unix seconds
	Offset uint64
	Size   uint32
	Prev   uint32 // previous version's blob ID, 0 for first
	Note1  uint32
	Note2  uint32
}

func (h header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.Stamp))
	binary.BigEndian.PutUint64(buf[8:16], h.Offset)
	binary.BigEndian.PutUint32(buf[16:20], h.Size)
	binary.BigEndian.PutUint32(buf[20:24], h.Prev)
	binary.BigEndian.PutUint32(buf[24:28], h.Note1)
	binary.BigEndian.PutUint32(buf[28:32], h.Note2)
	return buf
}

func unmarshalHeader(buf []byte) header {
	return header{
		Stamp:  int64(binary.BigEndian.Uint64(buf[0:8])),
		Offset: binary.BigEndian.Uint64(buf[8:16]),
		Size:   binary.BigEndian.Uint32(buf[16:20]),
		Prev:   binary.BigEndian.Uint32(buf[20:24]),
		Note1:  binary.BigEndian.Uint32(buf[24:28]),
		Note2:  binary.BigEndian.Uint32(buf[28:32]),
	}
}
