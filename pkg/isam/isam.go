/*
Package isam implements the ISAM (Indexed Sequential Access Method) key/
value file described in spec §4.3 (C3): sorted (key,value) pairs packed
into fixed-size logical blocks of a data file, with an in-memory block
index replayed from an append-only index log at open.

Random-access reads use a read-only mmap of the data file, the same
pattern `_examples/saferwall-pe/file.go` uses for its PE image bytes
(`mmap.Map(f, mmap.RDONLY, 0)`): ISAM data is append-only between opens,
so a mapping taken at Open stays valid for the life of the file handle.
*/
package isam

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/metrics"
)

// blockSize is the fixed logical block size pairs are packed into (spec
// §4.3 "fixed-sized logical blocks").
const blockSize = 4096

// maxKeyLen, maxValLen bound a single key or value (spec §3 "Keys and
// values are byte strings <=256 bytes each").
const maxKeyLen = 256
const maxValLen = 256

type kv struct {
	key, val []byte
}

// File is an open ISAM key/value file.
type File struct {
	mu sync.Mutex

	dataPath, idxPath string
	dataFile          *os.File
	idxFile           *os.File
	mapped            mmap.MMap

	// index maps each block's ordinal to the lowest key it holds, kept
	// sorted by key for upper_bound lookups (spec §4.3 "in-memory map
	// from the lowest key of each block to the block address").
	blockKeys  [][]byte
	blockAddrs []int64
}

// Open loads the index file (one "address,key\n" entry per line), sorts
// by key into the in-memory map, and mmaps the data file read-only (spec
// §4.3 "Open loads the index file... sorts by key").
func Open(dataPath, idxPath string) (*File, error) {
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "isam.Open", "open data file", err)
	}
	idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		dataFile.Close()
		return nil, dberr.Wrap(dberr.KindIO, "isam.Open", "open index file", err)
	}

	f := &File{dataPath: dataPath, idxPath: idxPath, dataFile: dataFile, idxFile: idxFile}

	scanner := bufio.NewScanner(idxFile)
	type entry struct {
		addr int64
		key  []byte
	}
	var entries []entry
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		comma := bytes.IndexByte([]byte(line), ',')
		if comma < 0 {
			return nil, dberr.New(dberr.KindFormat, "isam.Open", fmt.Sprintf("malformed index line %q", line))
		}
		var addr int64
		if _, err := fmt.Sscanf(line[:comma], "%d", &addr); err != nil {
			return nil, dberr.Wrap(dberr.KindFormat, "isam.Open", "malformed index address", err)
		}
		entries = append(entries, entry{addr: addr, key: []byte(line[comma+1:])})
	}
	if err := scanner.Err(); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "isam.Open", "scan index file", err)
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })
	for _, e := range entries {
		f.blockKeys = append(f.blockKeys, e.key)
		f.blockAddrs = append(f.blockAddrs, e.addr)
	}

	if err := f.remap(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) remap() error {
	if f.mapped != nil {
		f.mapped.Unmap()
		f.mapped = nil
	}
	info, err := f.dataFile.Stat()
	if err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Open", "stat data file", err)
	}
	if info.Size() == 0 {
		return nil
	}
	m, err := mmap.Map(f.dataFile, mmap.RDONLY, 0)
	if err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Open", "mmap data file", err)
	}
	f.mapped = m
	return nil
}

// Close unmaps and closes both underlying files.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mapped != nil {
		f.mapped.Unmap()
	}
	err1 := f.dataFile.Close()
	err2 := f.idxFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// blockAt deserializes the key/value pairs stored in the block at byte
// offset addr, slicing directly into the read-only mmap taken at Open/
// remap rather than issuing a seek+read. Falls back to ReadAt only if the
// mapping is absent or doesn't yet cover addr (e.g. a write that grew the
// file is mid-flight before the post-write remap runs).
func (f *File) blockAt(addr int64) ([]kv, error) {
	if f.mapped != nil && addr >= 0 && addr+blockSize <= int64(len(f.mapped)) {
		return deserializeBlock(f.mapped[addr : addr+blockSize])
	}
	buf := make([]byte, blockSize)
	n, err := f.dataFile.ReadAt(buf, addr)
	if err != nil && n == 0 {
		return nil, dberr.Wrap(dberr.KindIO, "isam.blockAt", "read block", err)
	}
	return deserializeBlock(buf[:n])
}

func serializeBlock(pairs []kv) []byte {
	var buf bytes.Buffer
	for _, p := range pairs {
		buf.Write(p.key)
		buf.WriteByte('\n')
		buf.Write(p.val)
		buf.WriteByte('\n')
	}
	out := buf.Bytes()
	if len(out) < blockSize {
		padded := make([]byte, blockSize)
		copy(padded, out)
		return padded
	}
	return out
}

func deserializeBlock(buf []byte) ([]kv, error) {
	var pairs []kv
	rest := buf
	for len(rest) > 0 {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		key := rest[:nl]
		rest = rest[nl+1:]
		if len(key) == 0 {
			break // zero-padding reached
		}
		nl2 := bytes.IndexByte(rest, '\n')
		if nl2 < 0 {
			return nil, dberr.New(dberr.KindFormat, "isam.deserializeBlock", "truncated value")
		}
		val := rest[:nl2]
		rest = rest[nl2+1:]
		pairs = append(pairs, kv{key: append([]byte(nil), key...), val: append([]byte(nil), val...)})
	}
	return pairs, nil
}

// blockIndexFor locates the target block via upper_bound on key (spec
// §4.3 "locate the target block via upper_bound on the key").
func (f *File) blockIndexFor(key []byte) int {
	i := sort.Search(len(f.blockKeys), func(i int) bool { return bytes.Compare(f.blockKeys[i], key) > 0 })
	if i == 0 {
		return 0
	}
	return i - 1
}

// Insert implements the block-insert-with-spill algorithm (spec §4.3
// "Insert algorithm").
func (f *File) Insert(key, val []byte) error {
	if len(key) > maxKeyLen || len(val) > maxValLen {
		return dberr.New(dberr.KindRange, "isam.Insert", "key or value exceeds 256 bytes")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.blockAddrs) == 0 {
		return f.createFirstBlockLocked(key, val)
	}

	idx := f.blockIndexFor(key)
	pairs, err := f.blockAt(f.blockAddrs[idx])
	if err != nil {
		return err
	}
	pairs = insertSorted(pairs, kv{key: key, val: val})

	serialized := serializeBlock(pairs)
	if len(serialized) <= blockSize {
		if _, err := f.dataFile.WriteAt(serialized, f.blockAddrs[idx]); err != nil {
			return dberr.Wrap(dberr.KindIO, "isam.Insert", "write block", err)
		}
		return f.remapAndFlushLocked()
	}

	fit, spill := splitToFit(pairs)
	metrics.ISAMBlockSplitsTotal.WithLabelValues(f.dataPath).Inc()
	if _, err := f.dataFile.WriteAt(serializeBlock(fit), f.blockAddrs[idx]); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "write block", err)
	}

	info, err := f.dataFile.Stat()
	if err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "stat data file", err)
	}
	newAddr := info.Size()
	if _, err := f.dataFile.WriteAt(serializeBlock(spill), newAddr); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "write spill block", err)
	}

	newKey := spill[0].key
	insertPos := idx + 1
	f.blockKeys = append(f.blockKeys, nil)
	copy(f.blockKeys[insertPos+1:], f.blockKeys[insertPos:])
	f.blockKeys[insertPos] = newKey
	f.blockAddrs = append(f.blockAddrs, 0)
	copy(f.blockAddrs[insertPos+1:], f.blockAddrs[insertPos:])
	f.blockAddrs[insertPos] = newAddr

	if _, err := fmt.Fprintf(f.idxFile, "%d,%s\n", newAddr, newKey); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "append index log", err)
	}

	return f.remapAndFlushLocked()
}

func (f *File) createFirstBlockLocked(key, val []byte) error {
	pairs := []kv{{key: key, val: val}}
	if _, err := f.dataFile.WriteAt(serializeBlock(pairs), 0); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "write first block", err)
	}
	f.blockKeys = [][]byte{nil}
	f.blockAddrs = []int64{0}
	if _, err := fmt.Fprintf(f.idxFile, "%d,%s\n", int64(0), ""); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "append index log", err)
	}
	return f.remapAndFlushLocked()
}

func (f *File) remapAndFlushLocked() error {
	if err := f.idxFile.Sync(); err != nil {
		return dberr.Wrap(dberr.KindIO, "isam.Insert", "sync index log", err)
	}
	return f.remap()
}

func insertSorted(pairs []kv, p kv) []kv {
	i := sort.Search(len(pairs), func(i int) bool { return bytes.Compare(pairs[i].key, p.key) >= 0 })
	if i < len(pairs) && bytes.Equal(pairs[i].key, p.key) {
		pairs[i] = p
		return pairs
	}
	pairs = append(pairs, kv{})
	copy(pairs[i+1:], pairs[i:])
	pairs[i] = p
	return pairs
}

// splitToFit writes what fits under blockSize into fit and spills the
// rest (spec §4.3 step 5 "write what fits... spill the rest").
func splitToFit(pairs []kv) (fit, spill []kv) {
	size := 0
	for i, p := range pairs {
		pairSize := len(p.key) + 1 + len(p.val) + 1
		if size+pairSize > blockSize {
			return pairs[:i], pairs[i:]
		}
		size += pairSize
	}
	return pairs, nil
}

// Fetch returns all pairs whose key is in [lo, hi] (spec §4.3 "fetch(lo,
// hi, out)").
func (f *File) Fetch(lo, hi []byte) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string][]byte)
	startIdx := f.blockIndexFor(lo)
	for i := startIdx; i < len(f.blockAddrs); i++ {
		if i > startIdx && bytes.Compare(f.blockKeys[i], hi) > 0 {
			break
		}
		pairs, err := f.blockAt(f.blockAddrs[i])
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			if len(p.val) == 0 {
				continue // tombstoned
			}
			if bytes.Compare(p.key, lo) >= 0 && bytes.Compare(p.key, hi) <= 0 {
				out[string(p.key)] = p.val
			}
		}
	}
	return out, nil
}

// Exists is a point query for k (spec §4.3 "exists(k) is a point query").
func (f *File) Exists(k []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.blockIndexFor(k)
	if idx >= len(f.blockAddrs) {
		return false, nil
	}
	pairs, err := f.blockAt(f.blockAddrs[idx])
	if err != nil {
		return false, err
	}
	for _, p := range pairs {
		if bytes.Equal(p.key, k) {
			return len(p.val) > 0, nil
		}
	}
	return false, nil
}

// Delete tombstones k: the source does not implement physical removal
// (spec §4.3 "delete is stubbed"), so the value is overwritten with a
// zero-length sentinel that Fetch and Exists skip. The key's slot and
// its block-index entry are left in place; physical compaction is out of
// scope.
func (f *File) Delete(k []byte) error {
	return f.Insert(k, nil)
}
