package blobstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/log"
	"github.com/hadronzoo/deltadb/pkg/metrics"
)

// blockSize is HZ_BLOCKSIZE, the read burst Integrity uses to sweep the
// index file. Fetch reads each blob with one ReadAt of header.Size bytes.
const blockSize = 4096

// Store is an append-only blob repository: data file holds raw bytes with
// no framing, index file holds one fixed-size header per blob (spec
// §4.2/§6).
type Store struct {
	dataPath, idxPath string

	idxReadMu, idxWriteMu   sync.Mutex
	dataReadMu, dataWriteMu sync.Mutex

	dataFile *os.File
	idxFile  *os.File

	blobCount int64
	totalSize int64
}

// Open creates the data/index files if absent, otherwise sizes them from
// the existing index file's blob count (spec §4.2 "Initialization creates
// files if absent, otherwise sizes them").
func Open(dataPath, idxPath string) (*Store, error) {
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Open", "open data file", err)
	}
	idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		dataFile.Close()
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Open", "open index file", err)
	}

	s := &Store{dataPath: dataPath, idxPath: idxPath, dataFile: dataFile, idxFile: idxFile}

	idxInfo, err := idxFile.Stat()
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Open", "stat index file", err)
	}
	s.blobCount = idxInfo.Size() / headerSize

	dataInfo, err := dataFile.Stat()
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Open", "stat data file", err)
	}
	s.totalSize = dataInfo.Size()

	return s, nil
}

// Close closes both underlying files.
func (s *Store) Close() error {
	err1 := s.dataFile.Close()
	err2 := s.idxFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// BlobCount returns the number of blobs ever inserted (including
// superseded versions).
func (s *Store) BlobCount() uint32 {
	return uint32(s.blobCount)
}

// Insert appends a header (address = current totalSize, size = len(chain),
// prev = 0, stamp = now) then appends the bytes; returns blobCount+1
// (spec §4.2 "insert").
func (s *Store) Insert(chain []byte, now int64) (uint32, error) {
	if len(chain) == 0 {
		return 0, dberr.New(dberr.KindArgument, "blobstore.Insert", "no data")
	}
	return s.writeVersion(chain, 0, now)
}

// Update is Insert but the header's prev is set to id, and returns the
// new blob ID that now supersedes it. Old bytes are never reclaimed
// (spec §4.2 "update").
func (s *Store) Update(id uint32, chain []byte, now int64) (uint32, error) {
	if id == 0 || uint32(s.blobCount) < id {
		return 0, dberr.New(dberr.KindRange, "blobstore.Update", fmt.Sprintf("blob id %d out of range", id))
	}
	return s.writeVersion(chain, id, now)
}

func (s *Store) writeVersion(chain []byte, prev uint32, now int64) (uint32, error) {
	s.dataWriteMu.Lock()
	offset := s.totalSize
	n, err := s.dataFile.WriteAt(chain, offset)
	if err != nil {
		s.dataWriteMu.Unlock()
		return 0, dberr.Wrap(dberr.KindIO, "blobstore.Insert", "write data", err)
	}
	s.totalSize += int64(n)
	s.dataWriteMu.Unlock()

	h := header{Stamp: now, Offset: uint64(offset), Size: uint32(len(chain)), Prev: prev}

	s.idxWriteMu.Lock()
	defer s.idxWriteMu.Unlock()
	hdrOffset := s.blobCount * headerSize
	if _, err := s.idxFile.WriteAt(h.marshal(), hdrOffset); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "blobstore.Insert", "write header", err)
	}
	s.blobCount++

	metrics.BlobRepositoryBlobsTotal.WithLabelValues(s.dataPath).Set(float64(s.blobCount))
	metrics.BlobRepositoryBytesTotal.WithLabelValues(s.dataPath).Set(float64(s.totalSize))

	return uint32(s.blobCount), nil
}

// Fetch seeks the index at (id-1)*headerSize, reads the header, seeks the
// data file at header.Offset, and copies header.Size bytes (spec §4.2
// "fetch").
func (s *Store) Fetch(id uint32) ([]byte, error) {
	if id == 0 || uint32(s.blobCount) < id {
		return nil, dberr.New(dberr.KindRange, "blobstore.Fetch", fmt.Sprintf("blob id %d out of range", id))
	}

	s.idxReadMu.Lock()
	buf := make([]byte, headerSize)
	_, err := s.idxFile.ReadAt(buf, int64(id-1)*headerSize)
	s.idxReadMu.Unlock()
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Fetch", "read header", err)
	}
	h := unmarshalHeader(buf)

	out := make([]byte, h.Size)
	s.dataReadMu.Lock()
	_, err = s.dataFile.ReadAt(out, int64(h.Offset))
	s.dataReadMu.Unlock()
	if err != nil {
		// read-fail is logged; ReadAt keeps no stream error state, so
		// subsequent requests can proceed (spec §4.2 "Failure modes").
		log.Logger.Warn().Err(err).Uint32("blob", id).Str("file", s.dataPath).Msg("blob read failed")
		return nil, dberr.Wrap(dberr.KindIO, "blobstore.Fetch", "read data", err)
	}
	return out, nil
}

// Delete is present for interface symmetry only: it is a no-op that
// returns ok iff 1 <= id <= blobCount (spec §4.2 "delete"). Logical
// delete is carried by object repositories.
func (s *Store) Delete(id uint32) error {
	if id == 0 || uint32(s.blobCount) < id {
		return dberr.New(dberr.KindRange, "blobstore.Delete", fmt.Sprintf("blob id %d out of range", id))
	}
	return nil
}

// Integrity sweeps the index file in 4 KiB bursts, verifying monotonic
// stamps and that the sum of sizes equals the data file's length (spec
// §4.2 "integrity(logger)").
func (s *Store) Integrity() error {
	s.idxReadMu.Lock()
	defer s.idxReadMu.Unlock()

	buf := make([]byte, blockSize-(blockSize%headerSize))
	var lastStamp int64
	var sumSizes int64
	first := true
	offset := int64(0)

	for {
		n, err := s.idxFile.ReadAt(buf, offset)
		if n > 0 {
			for i := 0; i+headerSize <= n; i += headerSize {
				h := unmarshalHeader(buf[i : i+headerSize])
				if !first && h.Stamp < lastStamp {
					return dberr.New(dberr.KindFormat, "blobstore.Integrity", "stamps not monotonic")
				}
				first = false
				lastStamp = h.Stamp
				sumSizes += int64(h.Size)
			}
		}
		if err != nil {
			break
		}
		offset += int64(n)
	}

	dataInfo, err := s.dataFile.Stat()
	if err != nil {
		return dberr.Wrap(dberr.KindIO, "blobstore.Integrity", "stat data file", err)
	}
	if sumSizes != dataInfo.Size() {
		return dberr.New(dberr.KindFormat, "blobstore.Integrity", fmt.Sprintf("sum of blob sizes %d != data file length %d", sumSizes, dataInfo.Size()))
	}
	return nil
}
