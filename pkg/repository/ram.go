package repository

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hadronzoo/deltadb/pkg/atom"
	"github.com/hadronzoo/deltadb/pkg/container"
	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/index"
	"github.com/hadronzoo/deltadb/pkg/log"
	"github.com/hadronzoo/deltadb/pkg/metrics"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/hadronzoo/deltadb/pkg/strtable"
)

// DeltaSink receives the exact bytes flushed to a repository's local
// delta log, for forwarding to the Delta Client (spec §4.8 step 7 "If a
// Delta Client is attached, forward the exact same delta bytes to it").
type DeltaSink interface {
	SendDelta(data []byte) error
}

// indexKind tags which of the three C8 index kinds (if any) a member
// carries, mirroring the sum-type / tagged-variant guidance of spec §9
// ("index kinds are a sum; the repository keeps a per-member
// Option<IndexVariant> array") instead of a dispatch hierarchy.
type indexKind int

const (
	indexNone indexKind = iota
	indexUnique
	indexEnum
	indexText
)

type memberIndex struct {
	kind   indexKind
	unique *index.UniqueKeyIndex
	enum   *index.EnumIndex
	text   *index.TextIndex
}

// initState mirrors the three-phase init sequence initStart /
// initMemberIndex|initMemberStore / initDone (spec §4.8).
type initState int

const (
	stateNotYetInitializing initState = iota
	stateInitializing
	stateDone
)

// RAM is the RAM Object Repository (spec §4.8, C9): a fixed-slot
// in-memory record store with an append-only delta log. Slots are kept
// as per-member maps keyed by object ID rather than literal
// bit-packed 64-object cache blocks, but every operation the spec
// contracts for — three-phase init, dense monotonic IDs, litmus
// null-tracking, unique-index admission, tombstone delete, delta replay —
// is implemented to the same external behavior.
type RAM struct {
	mu sync.RWMutex

	name    string
	class   *schema.Class
	reposID uint32
	strs    *strtable.Table
	sink    DeltaSink

	state initState

	population     uint32
	deletesEnabled bool
	tombstones     map[uint32]bool

	fixed  map[uint32]map[uint32]uint32 // memberNo -> objID -> code
	litmus map[uint32]map[uint32]bool   // memberNo -> objID -> non-null
	lists  map[uint32]map[uint32][]uint32

	large []uint64

	indexes map[uint32]*memberIndex // keyed by member number

	deltaLog *os.File
	workdir  string
}

// NewRAM constructs a RAM repository bound to name under workdir. Call
// InitStart next (spec §4.8 "three-step sequence").
func NewRAM(workdir, name string, strs *strtable.Table) *RAM {
	return &RAM{
		name:       name,
		workdir:    workdir,
		strs:       strs,
		tombstones: make(map[uint32]bool),
		fixed:      make(map[uint32]map[uint32]uint32),
		litmus:     make(map[uint32]map[uint32]bool),
		lists:      make(map[uint32]map[uint32][]uint32),
		indexes:    make(map[uint32]*memberIndex),
	}
}

// AttachSink attaches a Delta Client forwarding sink (spec §4.8 step 7).
func (r *RAM) AttachSink(sink DeltaSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// EnableDeletes opts this repository into tombstone delete (SPEC_FULL.md
// Open Question decision: delete defaults off).
func (r *RAM) EnableDeletes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletesEnabled = true
}

// InitStart binds a frozen class (spec §4.8 "initStart binds a frozen
// class").
func (r *RAM) InitStart(class *schema.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateNotYetInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitStart", "already initializing")
	}
	if class.State() != schema.ClassFrozen {
		return dberr.New(dberr.KindSequence, "repository.InitStart", fmt.Sprintf("class %q is not frozen", class.Name))
	}
	r.class = class
	r.reposID = class.Number
	r.state = stateInitializing
	return nil
}

// InitMemberIndex attaches one of the three C8 index kinds to a member
// (spec §4.8/§4.7).
func (r *RAM) InitMemberIndex(memberNo uint32, kind indexKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitMemberIndex", "not in init phase")
	}
	mi := &memberIndex{kind: kind}
	switch kind {
	case indexUnique:
		mi.unique = index.NewUniqueKeyIndex()
	case indexEnum:
		itemCount := 0
		if m, err := r.findMemberLocked(memberNo); err == nil && m.Type.Enum != nil {
			itemCount = len(m.Type.Enum.Items)
		}
		mi.enum = index.NewEnumIndex(itemCount)
	case indexText:
		mi.text = index.NewTextIndex()
	}
	r.indexes[memberNo] = mi
	return nil
}

const (
	IndexNone   = indexNone
	IndexUnique = indexUnique
	IndexEnum   = indexEnum
	IndexText   = indexText
)

// InitDone opens (creating if absent) the per-repository delta log and
// replays any existing lines, advancing population to the highest object
// ID seen (spec §4.8 "Open protocol (replay at startup)").
func (r *RAM) InitDone() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitDone", "not in init phase")
	}

	path := r.workdir + "/" + r.name + ".cache"
	existing, err := os.ReadFile(path)
	if err == nil {
		lines, perr := readDeltaLines(newByteReader(existing))
		if perr != nil {
			return perr
		}
		for _, dl := range lines {
			if err := r.replayLocked(dl); err != nil {
				return err
			}
		}
	} else if !os.IsNotExist(err) {
		return dberr.Wrap(dberr.KindIO, "repository.InitDone", "read delta log", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.InitDone", "open delta log", err)
	}
	r.deltaLog = f
	r.state = stateDone
	return nil
}

func (r *RAM) replayLocked(dl deltaLine) error {
	m, err := r.findMemberLocked(dl.MemberID)
	if err != nil {
		return err
	}
	r.writeSlotLocked(m, dl.ObjectID, dl.Value)
	if dl.ObjectID > r.population {
		r.population = dl.ObjectID
	}
	return r.indexInsertLocked(m, dl.ObjectID, dl.Value)
}

func (r *RAM) findMemberLocked(memberNo uint32) (*schema.Member, error) {
	for _, m := range r.class.Members() {
		if m.Number == memberNo {
			return m, nil
		}
	}
	return nil, dberr.New(dberr.KindFormat, "repository.findMember", fmt.Sprintf("member %d not found on class %q", memberNo, r.class.Name))
}

// Insert runs the insert protocol: validate class compatibility, check
// unique indexes, assign object ID, write slots, append+flush delta
// lines, update indexes, forward to the delta client (spec §4.8
// "Insert protocol").
func (r *RAM) Insert(c *container.Container) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RepositoryInsertDuration, r.name)

	if r.state != stateDone {
		return 0, dberr.New(dberr.KindSequence, "repository.Insert", "not initialized")
	}
	if c.Class().Name != r.class.Name {
		return 0, dberr.New(dberr.KindType, "repository.Insert", "container class does not match repository class")
	}

	objID := r.population + 1

	// Phase 1: admission check against unique-key indexes before any
	// mutation (spec §4.8 step 2).
	type pending struct {
		member *schema.Member
		text   string
	}
	var toWrite []pending
	for _, m := range r.class.Members() {
		romid := container.ROMID{ClassID: r.class.Number, ObjectID: 1, MemberID: m.Number}
		a, ok := c.GetValue(romid, m.Type.Base)
		if !ok {
			continue
		}
		text := a.Str()
		if mi, exists := r.indexes[m.Number]; exists && mi.kind == indexUnique {
			key, err := r.indexKeyLocked(m, text)
			if err != nil {
				return 0, err
			}
			if _, dup := mi.unique.Lookup(key); dup {
				metrics.RepositoryDuplicatesTotal.WithLabelValues(r.name).Inc()
				return 0, dberr.New(dberr.KindDuplicate, "repository.Insert", fmt.Sprintf("member %q value already present", m.Name))
			}
		}
		toWrite = append(toWrite, pending{member: m, text: text})
	}

	var logLines []byte
	for _, p := range toWrite {
		r.writeSlotLocked(p.member, objID, p.text)
		logLines = append(logLines, []byte(formatDelta(r.reposID, false, r.class.Number, objID, p.member.Number, p.text))...)
	}

	if _, err := r.deltaLog.Write(logLines); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "write delta log", err)
	}
	if err := r.deltaLog.Sync(); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "flush delta log", err)
	}

	for _, p := range toWrite {
		if err := r.indexInsertLocked(p.member, objID, p.text); err != nil {
			return 0, err
		}
	}

	r.population = objID
	metrics.RepositoryInsertsTotal.WithLabelValues(r.name).Inc()
	metrics.RepositoryObjectsTotal.WithLabelValues(r.name, r.class.Name).Set(float64(r.population))

	if r.sink != nil {
		if err := r.sink.SendDelta(logLines); err != nil {
			log.Logger.Warn().Err(err).Str("repository", r.name).Msg("delta client forward failed")
		}
	}

	return objID, nil
}

func (r *RAM) writeSlotLocked(m *schema.Member, objID uint32, text string) {
	if r.fixed[m.Number] == nil {
		r.fixed[m.Number] = make(map[uint32]uint32)
	}
	if r.litmus[m.Number] == nil {
		r.litmus[m.Number] = make(map[uint32]bool)
	}

	var code uint32
	switch {
	case m.Type.Base.IsStringLike():
		kind := strtable.KindString
		if m.Type.Base == schema.BaseDomain {
			kind = strtable.KindDomain
		} else if m.Type.Base == schema.BaseEmail {
			kind = strtable.KindEmail
		}
		if r.strs != nil {
			num, err := r.strs.InternOrGet(kind, text)
			if err == nil {
				code = num
			}
		}
	case m.Type.Base.Is64Bit():
		r.large = append(r.large, encodeLargeText(m, text))
		code = uint32(len(r.large) - 1)
	default:
		code = encodeInlineText(m, text)
	}

	r.fixed[m.Number][objID] = code
	r.litmus[m.Number][objID] = true
}

// indexKeyLocked returns the index key for m's value text: the interned
// string number for string-like members, and a 64-bit FNV-1a hash of the
// value text for every other member. Numeric, IP and date-time values are
// not converted to their numeric value, so two distinct values whose
// texts hash alike share one key.
func (r *RAM) indexKeyLocked(m *schema.Member, text string) (uint64, error) {
	if m.Type.Base.IsStringLike() {
		if r.strs == nil {
			return 0, dberr.New(dberr.KindInit, "repository.indexKey", "no string table attached")
		}
		kind := strtable.KindString
		if m.Type.Base == schema.BaseDomain {
			kind = strtable.KindDomain
		} else if m.Type.Base == schema.BaseEmail {
			kind = strtable.KindEmail
		}
		num, err := r.strs.InternOrGet(kind, text)
		if err != nil {
			return 0, err
		}
		return uint64(num), nil
	}
	return hashText(text), nil
}

// enumCodeFor returns the small integer code text selects: CodeOf for
// true enum-typed members, the parsed integer for other low-cardinality
// categorical members, otherwise a hash-derived fallback.
func enumCodeFor(m *schema.Member, text string) int64 {
	if m.Type.Enum != nil {
		if code, ok := m.Type.Enum.CodeOf(text); ok {
			return int64(code)
		}
		return 0
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	return int64(hashText(text))
}

func (r *RAM) indexInsertLocked(m *schema.Member, objID uint32, text string) error {
	mi, ok := r.indexes[m.Number]
	if !ok {
		return nil
	}
	switch mi.kind {
	case indexUnique:
		key, err := r.indexKeyLocked(m, text)
		if err != nil {
			return err
		}
		return mi.unique.Insert(key, objID)
	case indexEnum:
		mi.enum.Insert(enumCodeFor(m, text), objID)
	case indexText:
		mi.text.Insert(objID, text)
	}
	return nil
}

// indexDeleteLocked removes the entries text previously claimed for m,
// used by Update to retire superseded index state before inserting the
// new value.
func (r *RAM) indexDeleteLocked(m *schema.Member, objID uint32, text string) {
	mi, ok := r.indexes[m.Number]
	if !ok {
		return
	}
	switch mi.kind {
	case indexUnique:
		key, err := r.indexKeyLocked(m, text)
		if err == nil {
			mi.unique.Delete(key)
		}
	case indexEnum:
		mi.enum.Delete(enumCodeFor(m, text), objID)
	case indexText:
		mi.text.Delete(objID, text)
	}
}

// Fetch rehydrates an Object Container for objID: for each member, read
// the fixed slot, translate interned string numbers back to text, emit
// atoms into the container (spec §4.8 "Fetch").
func (r *RAM) Fetch(objID uint32) (*container.Container, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if objID == 0 || objID > r.population {
		return nil, dberr.New(dberr.KindRange, "repository.Fetch", fmt.Sprintf("object id %d out of range", objID))
	}
	if r.tombstones[objID] {
		return nil, dberr.New(dberr.KindSequence, "repository.Fetch", fmt.Sprintf("object id %d was deleted", objID))
	}

	c, err := container.Init("", r.class)
	if err != nil {
		return nil, err
	}

	for _, m := range r.class.Members() {
		if !r.litmus[m.Number][objID] {
			continue
		}
		text, err := r.readSlotTextLocked(m, objID)
		if err != nil {
			return nil, err
		}
		a := atom.New()
		if err := a.SetValue(m.Type.Base, text); err != nil {
			return nil, err
		}
		if err := c.SetValue(1, m.Number, a); err != nil {
			return nil, err
		}
	}
	metrics.RepositoryFetchesTotal.WithLabelValues(r.name).Inc()
	return c, nil
}

func (r *RAM) readSlotTextLocked(m *schema.Member, objID uint32) (string, error) {
	code := r.fixed[m.Number][objID]
	switch {
	case m.Type.Base.IsStringLike():
		if r.strs == nil {
			return "", dberr.New(dberr.KindInit, "repository.Fetch", "no string table attached")
		}
		kind := strtable.KindString
		if m.Type.Base == schema.BaseDomain {
			kind = strtable.KindDomain
		} else if m.Type.Base == schema.BaseEmail {
			kind = strtable.KindEmail
		}
		text, ok, err := r.strs.TextOf(kind, code)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", dberr.New(dberr.KindFormat, "repository.Fetch", "interned string not found")
		}
		return text, nil
	case m.Type.Base == schema.BaseFloat64:
		return strconv.FormatFloat(math.Float64frombits(r.large[code]), 'g', -1, 64), nil
	case m.Type.Base.Is64Bit():
		return fmt.Sprintf("%d", r.large[code]), nil
	default:
		return decodeInlineText(m, code), nil
	}
}

// Identify looks up a single object ID via the unique-key index of
// memberNo (spec §4.8 "Identify").
func (r *RAM) Identify(memberNo uint32, text string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mi, ok := r.indexes[memberNo]
	if !ok || mi.kind != indexUnique {
		return 0, false
	}
	m, err := r.findMemberLocked(memberNo)
	if err != nil {
		return 0, false
	}
	key, err := r.indexKeyLocked(m, text)
	if err != nil {
		return 0, false
	}
	return mi.unique.Lookup(key)
}

// Update overwrites the object in place; no version history at this
// layer, the delta log is the history (spec §4.8 "Update").
func (r *RAM) Update(objID uint32, c *container.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if objID == 0 || objID > r.population {
		return dberr.New(dberr.KindRange, "repository.Update", fmt.Sprintf("object id %d out of range", objID))
	}
	if r.tombstones[objID] {
		return dberr.New(dberr.KindSequence, "repository.Update", "object was deleted")
	}

	var logLines []byte
	for _, m := range r.class.Members() {
		romid := container.ROMID{ClassID: r.class.Number, ObjectID: 1, MemberID: m.Number}
		a, ok := c.GetValue(romid, m.Type.Base)
		if !ok {
			continue
		}
		text := a.Str()
		if r.litmus[m.Number][objID] {
			if oldText, err := r.readSlotTextLocked(m, objID); err == nil {
				r.indexDeleteLocked(m, objID, oldText)
			}
		}
		r.writeSlotLocked(m, objID, text)
		if err := r.indexInsertLocked(m, objID, text); err != nil {
			return err
		}
		logLines = append(logLines, []byte(formatDelta(r.reposID, false, r.class.Number, objID, m.Number, text))...)
	}
	if _, err := r.deltaLog.Write(logLines); err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.Update", "write delta log", err)
	}
	if err := r.deltaLog.Sync(); err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.Update", "flush delta log", err)
	}

	if r.sink != nil {
		if err := r.sink.SendDelta(logLines); err != nil {
			log.Logger.Warn().Err(err).Str("repository", r.name).Msg("delta client forward failed")
		}
	}
	return nil
}

// Delete logically tombstones objID by adding it to the tombstones set;
// slot data and litmus entries remain (spec §4.8 "Delete"). Gated by EnableDeletes per SPEC_FULL.md's
// Open Question decision: disabled by default.
func (r *RAM) Delete(objID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deletesEnabled {
		return dberr.New(dberr.KindSequence, "repository.Delete", "deletes are disabled for this repository")
	}
	if objID == 0 || objID > r.population {
		return dberr.New(dberr.KindRange, "repository.Delete", fmt.Sprintf("object id %d out of range", objID))
	}
	r.tombstones[objID] = true
	return nil
}

// Verify sweeps every member's fixed-slot map and confirms no entry
// references an object ID beyond the current population (SPEC_FULL.md
// "Integrity sweep").
func (r *RAM) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.class.Members() {
		for objID := range r.fixed[m.Number] {
			if objID == 0 || objID > r.population {
				return dberr.New(dberr.KindFormat, "repository.Verify", fmt.Sprintf("member %q has slot for out-of-range object %d", m.Name, objID))
			}
		}
	}
	return nil
}

// Population returns the highest object ID ever assigned.
func (r *RAM) Population() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.population
}

func hashText(s string) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func encodeLargeText(m *schema.Member, text string) uint64 {
	switch m.Type.Base {
	case schema.BaseTimestamp:
		t, err := time.Parse(time.RFC3339, text)
		if err == nil {
			return uint64(t.Unix())
		}
	case schema.BaseFloat64:
		f, err := strconv.ParseFloat(text, 64)
		if err == nil {
			return math.Float64bits(f)
		}
		return 0
	}
	var n uint64
	fmt.Sscanf(text, "%d", &n)
	return n
}

func encodeInlineText(m *schema.Member, text string) uint32 {
	switch m.Type.Base {
	case schema.BaseBool:
		if text == "true" {
			return 1
		}
		return 0
	}
	var n int32
	fmt.Sscanf(text, "%d", &n)
	return uint32(n)
}

func decodeInlineText(m *schema.Member, code uint32) string {
	switch m.Type.Base {
	case schema.BaseBool:
		if code != 0 {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%d", int32(code))
}

func newByteReader(b []byte) io.Reader {
	return &byteReader{data: b}
}

type byteReader struct {
	data []byte
	pos  int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
