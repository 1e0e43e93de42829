package repository

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hadronzoo/deltadb/pkg/atom"
	"github.com/hadronzoo/deltadb/pkg/blobstore"
	"github.com/hadronzoo/deltadb/pkg/container"
	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/index"
	"github.com/hadronzoo/deltadb/pkg/log"
	"github.com/hadronzoo/deltadb/pkg/metrics"
	"github.com/hadronzoo/deltadb/pkg/schema"
)

// Disk is the Disk Object Repository (spec §4.9, C10): same external
// contract as RAM, but a record's member values are never held resident.
// Each record is serialized whole into one Blob Repository entry; there
// is no fixed-slot area, so fetch always rehydrates from disk. Binary and
// text-document members (BaseType.IsBlob) store only a 32-bit blob-ID
// into a separate, possibly shared, Blob Repository; text members are
// stored inline in the record body like other string values.
type Disk struct {
	mu sync.RWMutex

	name    string
	class   *schema.Class
	reposID uint32
	sink    DeltaSink

	state initState

	population     uint32
	deletesEnabled bool
	tombstones     map[uint32]bool

	records *blobstore.Store // whole-record serialized bodies
	binRepo *blobstore.Store // shared-or-dedicated repository for blob-typed members; nil if the class has none

	blobIDs map[uint32]map[uint32]uint32 // memberNo -> objID -> blob id, for members whose base type IsBlob()

	indexes map[uint32]*memberIndex

	deltaLog *os.File
	workdir  string
}

// NewDisk constructs a Disk repository bound to name under workdir.
// binRepo may be nil if the class carries no blob-typed member, or may be
// shared across repositories per spec §4.10 "initMemberStore binds to a
// shared or default Blob Repository".
func NewDisk(workdir, name string, binRepo *blobstore.Store) *Disk {
	return &Disk{
		name:       name,
		workdir:    workdir,
		binRepo:    binRepo,
		tombstones: make(map[uint32]bool),
		blobIDs:    make(map[uint32]map[uint32]uint32),
		indexes:    make(map[uint32]*memberIndex),
	}
}

func (d *Disk) AttachSink(sink DeltaSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

func (d *Disk) EnableDeletes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletesEnabled = true
}

func (d *Disk) InitStart(class *schema.Class) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateNotYetInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitStart", "already initializing")
	}
	if class.State() != schema.ClassFrozen {
		return dberr.New(dberr.KindSequence, "repository.InitStart", fmt.Sprintf("class %q is not frozen", class.Name))
	}
	for _, m := range class.Members() {
		if m.Type.Base.IsBlob() && d.binRepo == nil {
			return dberr.New(dberr.KindInit, "repository.InitStart", fmt.Sprintf("class %q has blob member %q but no blob repository was attached", class.Name, m.Name))
		}
	}
	d.class = class
	d.reposID = class.Number
	d.state = stateInitializing
	return nil
}

func (d *Disk) InitMemberIndex(memberNo uint32, kind indexKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitMemberIndex", "not in init phase")
	}
	mi := &memberIndex{kind: kind}
	switch kind {
	case indexUnique:
		mi.unique = index.NewUniqueKeyIndex()
	case indexEnum:
		itemCount := 0
		if m, err := d.findMemberLocked(memberNo); err == nil && m.Type.Enum != nil {
			itemCount = len(m.Type.Enum.Items)
		}
		mi.enum = index.NewEnumIndex(itemCount)
	case indexText:
		mi.text = index.NewTextIndex()
	}
	d.indexes[memberNo] = mi
	return nil
}

// InitDone opens the record store, the local delta log, and replays any
// existing delta log lines so the index set matches what is already on
// disk (spec §4.9 "Open protocol: same replay contract as the RAM
// repository, applied on top of blob-backed storage").
func (d *Disk) InitDone(records *blobstore.Store) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateInitializing {
		return dberr.New(dberr.KindSequence, "repository.InitDone", "not in init phase")
	}
	d.records = records

	path := d.workdir + "/" + d.name + ".cache"
	existing, err := os.ReadFile(path)
	if err == nil {
		lines, perr := readDeltaLines(newByteReader(existing))
		if perr != nil {
			return perr
		}
		for _, dl := range lines {
			if err := d.replayLocked(dl); err != nil {
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
	d.deltaLog = f
	d.state = stateDone
	return nil
}

func (d *Disk) replayLocked(dl deltaLine) error {
	m, err := d.findMemberLocked(dl.MemberID)
	if err != nil {
		return err
	}
	if m.Type.Base.IsBlob() {
		var id uint32
		fmt.Sscanf(dl.Value, "%d", &id)
		if d.blobIDs[m.Number] == nil {
			d.blobIDs[m.Number] = make(map[uint32]uint32)
		}
		d.blobIDs[m.Number][dl.ObjectID] = id
	}
	if dl.ObjectID > d.population {
		d.population = dl.ObjectID
	}
	d.indexInsertLocked(m, dl.ObjectID, dl.Value)
	return nil
}

func (d *Disk) findMemberLocked(memberNo uint32) (*schema.Member, error) {
	for _, m := range d.class.Members() {
		if m.Number == memberNo {
			return m, nil
		}
	}
	return nil, dberr.New(dberr.KindFormat, "repository.findMember", fmt.Sprintf("member %d not found on class %q", memberNo, d.class.Name))
}

// Insert serializes c as one whole-record blob (spec §4.9 "no fixed-slot
// area; insert writes one blob version per record"), storing blob-typed
// members separately in the attached blob repository and recording only
// their blob IDs in the record body.
func (d *Disk) Insert(c *container.Container) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RepositoryInsertDuration, d.name)

	if d.state != stateDone {
		return 0, dberr.New(dberr.KindSequence, "repository.Insert", "not initialized")
	}
	if c.Class().Name != d.class.Name {
		return 0, dberr.New(dberr.KindType, "repository.Insert", "container class does not match repository class")
	}

	objID := d.population + 1

	type fieldVal struct {
		member *schema.Member
		text   string
		raw    []byte
	}
	var fields []fieldVal
	for _, m := range d.class.Members() {
		romid := container.ROMID{ClassID: d.class.Number, ObjectID: 1, MemberID: m.Number}
		a, ok := c.GetValue(romid, m.Type.Base)
		if !ok {
			continue
		}
		if m.Type.Base.IsBlob() {
			raw := a.Bytes()
			if mi, exists := d.indexes[m.Number]; exists && mi.kind == indexUnique {
				if _, dup := mi.unique.Lookup(hashText(string(raw))); dup {
					metrics.RepositoryDuplicatesTotal.WithLabelValues(d.name).Inc()
					return 0, dberr.New(dberr.KindDuplicate, "repository.Insert", fmt.Sprintf("member %q value already present", m.Name))
				}
			}
			fields = append(fields, fieldVal{member: m, raw: raw})
			continue
		}
		text := a.Str()
		if mi, exists := d.indexes[m.Number]; exists && mi.kind == indexUnique {
			if _, dup := mi.unique.Lookup(hashText(text)); dup {
				metrics.RepositoryDuplicatesTotal.WithLabelValues(d.name).Inc()
				return 0, dberr.New(dberr.KindDuplicate, "repository.Insert", fmt.Sprintf("member %q value already present", m.Name))
			}
		}
		fields = append(fields, fieldVal{member: m, text: text})
	}

	var body strings.Builder
	var logLines []byte
	for _, f := range fields {
		if f.member.Type.Base.IsBlob() {
			blobID, err := d.binRepo.Insert(f.raw, 0)
			if err != nil {
				return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "write blob member", err)
			}
			if d.blobIDs[f.member.Number] == nil {
				d.blobIDs[f.member.Number] = make(map[uint32]uint32)
			}
			d.blobIDs[f.member.Number][objID] = blobID
			idText := fmt.Sprintf("%d", blobID)
			fmt.Fprintf(&body, "m%d=%s\n", f.member.Number, idText)
			logLines = append(logLines, []byte(formatDelta(d.reposID, false, d.class.Number, objID, f.member.Number, idText))...)
			continue
		}
		fmt.Fprintf(&body, "m%d=%s\n", f.member.Number, escapeValue(f.text))
		logLines = append(logLines, []byte(formatDelta(d.reposID, false, d.class.Number, objID, f.member.Number, f.text))...)
	}

	if _, err := d.records.Insert([]byte(body.String()), 0); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "write record blob", err)
	}

	if _, err := d.deltaLog.Write(logLines); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "write delta log", err)
	}
	if err := d.deltaLog.Sync(); err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "repository.Insert", "flush delta log", err)
	}

	for _, f := range fields {
		if f.member.Type.Base.IsBlob() {
			d.indexInsertLocked(f.member, objID, string(f.raw))
			continue
		}
		d.indexInsertLocked(f.member, objID, f.text)
	}

	d.population = objID
	metrics.RepositoryInsertsTotal.WithLabelValues(d.name).Inc()
	metrics.RepositoryObjectsTotal.WithLabelValues(d.name, d.class.Name).Set(float64(d.population))

	if d.sink != nil {
		if err := d.sink.SendDelta(logLines); err != nil {
			log.Logger.Warn().Err(err).Str("repository", d.name).Msg("delta client forward failed")
		}
	}

	return objID, nil
}

func (d *Disk) indexInsertLocked(m *schema.Member, objID uint32, text string) {
	mi, ok := d.indexes[m.Number]
	if !ok {
		return
	}
	switch mi.kind {
	case indexUnique:
		_ = mi.unique.Insert(hashText(text), objID)
	case indexEnum:
		mi.enum.Insert(enumCodeFor(m, text), objID)
	case indexText:
		mi.text.Insert(objID, text)
	}
}

// indexDeleteLocked removes the entries text previously claimed for m,
// used by Update to retire superseded index state before inserting the
// new value.
func (d *Disk) indexDeleteLocked(m *schema.Member, objID uint32, text string) {
	mi, ok := d.indexes[m.Number]
	if !ok {
		return
	}
	switch mi.kind {
	case indexUnique:
		mi.unique.Delete(hashText(text))
	case indexEnum:
		mi.enum.Delete(enumCodeFor(m, text), objID)
	case indexText:
		mi.text.Delete(objID, text)
	}
}

// recordBlobID returns the record's Blob Repository id for objID. The
// Disk repository assigns one whole-record blob per insert/update, in
// objID order, so the nth insert/update owns blob id n; a tombstoned
// record still occupies its slot.
func (d *Disk) recordBlobID(objID uint32) uint32 {
	return objID
}

// Fetch rehydrates an Object Container from the whole-record blob (spec
// §4.9 "Fetch: always rehydrates from disk, no slot cache to consult").
func (d *Disk) Fetch(objID uint32) (*container.Container, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if objID == 0 || objID > d.population {
		return nil, dberr.New(dberr.KindRange, "repository.Fetch", fmt.Sprintf("object id %d out of range", objID))
	}
	if d.tombstones[objID] {
		return nil, dberr.New(dberr.KindSequence, "repository.Fetch", fmt.Sprintf("object id %d was deleted", objID))
	}

	raw, err := d.records.Fetch(d.recordBlobID(objID))
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "repository.Fetch", "read record blob", err)
	}

	c, err := container.Init("", d.class)
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 || !strings.HasPrefix(line, "m") {
			continue
		}
		var memberNo uint32
		fmt.Sscanf(line[:eq], "m%d", &memberNo)
		m, err := d.findMemberLocked(memberNo)
		if err != nil {
			continue
		}
		if m.Type.Base.IsBlob() {
			blobID := d.blobIDs[memberNo][objID]
			a := atom.New()
			if err := a.SetChain(m.Type.Base, nil); err != nil {
				return nil, err
			}
			blobBytes, ferr := d.binRepo.Fetch(blobID)
			if ferr == nil {
				if err := a.SetChain(m.Type.Base, blobBytes); err != nil {
					return nil, err
				}
			}
			if err := c.SetValue(1, memberNo, a); err != nil {
				return nil, err
			}
			continue
		}
		text, err := unescapeValue(line[eq+1:])
		if err != nil {
			return nil, err
		}
		a := atom.New()
		if err := a.SetValue(m.Type.Base, text); err != nil {
			return nil, err
		}
		if err := c.SetValue(1, memberNo, a); err != nil {
			return nil, err
		}
	}
	metrics.RepositoryFetchesTotal.WithLabelValues(d.name).Inc()
	return c, nil
}

// FetchBin fetches the blob payload of a binary or text-document member
// directly, without rehydrating the whole record (spec §4.10 "fetchBin").
func (d *Disk) FetchBin(memberNo, objID uint32) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.binRepo == nil {
		return nil, dberr.New(dberr.KindInit, "repository.FetchBin", "no blob repository attached")
	}
	blobID, ok := d.blobIDs[memberNo][objID]
	if !ok {
		return nil, dberr.New(dberr.KindRange, "repository.FetchBin", "no blob recorded for this member/object")
	}
	return d.binRepo.Fetch(blobID)
}

func (d *Disk) Identify(memberNo uint32, text string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mi, ok := d.indexes[memberNo]
	if !ok || mi.kind != indexUnique {
		return 0, false
	}
	return mi.unique.Lookup(hashText(text))
}

// Update writes a new whole-record blob version, letting blobstore chain
// Prev back to the old version, and appends fresh delta lines (spec §4.9
// "Update: new blob version, prev points at the old one").
func (d *Disk) Update(objID uint32, c *container.Container) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if objID == 0 || objID > d.population {
		return dberr.New(dberr.KindRange, "repository.Update", fmt.Sprintf("object id %d out of range", objID))
	}
	if d.tombstones[objID] {
		return dberr.New(dberr.KindSequence, "repository.Update", "object was deleted")
	}

	oldText := make(map[uint32]string)
	if oldRaw, err := d.records.Fetch(d.recordBlobID(objID)); err == nil {
		for _, line := range strings.Split(string(oldRaw), "\n") {
			if line == "" {
				continue
			}
			eq := strings.IndexByte(line, '=')
			if eq < 0 || !strings.HasPrefix(line, "m") {
				continue
			}
			var memberNo uint32
			fmt.Sscanf(line[:eq], "m%d", &memberNo)
			if text, uerr := unescapeValue(line[eq+1:]); uerr == nil {
				oldText[memberNo] = text
			}
		}
	}

	var body strings.Builder
	var logLines []byte
	for _, m := range d.class.Members() {
		romid := container.ROMID{ClassID: d.class.Number, ObjectID: 1, MemberID: m.Number}
		a, ok := c.GetValue(romid, m.Type.Base)
		if !ok {
			continue
		}
		if prev, had := oldText[m.Number]; had {
			if m.Type.Base.IsBlob() {
				var oldBlobID uint32
				if _, serr := fmt.Sscanf(prev, "%d", &oldBlobID); serr == nil && d.binRepo != nil {
					if oldRaw, ferr := d.binRepo.Fetch(oldBlobID); ferr == nil {
						d.indexDeleteLocked(m, objID, string(oldRaw))
					}
				}
			} else {
				d.indexDeleteLocked(m, objID, prev)
			}
		}
		if m.Type.Base.IsBlob() {
			blobID, err := d.binRepo.Insert(a.Bytes(), 0)
			if err != nil {
				return dberr.Wrap(dberr.KindIO, "repository.Update", "write blob member", err)
			}
			d.blobIDs[m.Number][objID] = blobID
			idText := fmt.Sprintf("%d", blobID)
			fmt.Fprintf(&body, "m%d=%s\n", m.Number, idText)
			logLines = append(logLines, []byte(formatDelta(d.reposID, false, d.class.Number, objID, m.Number, idText))...)
			d.indexInsertLocked(m, objID, idText)
			continue
		}
		text := a.Str()
		fmt.Fprintf(&body, "m%d=%s\n", m.Number, escapeValue(text))
		logLines = append(logLines, []byte(formatDelta(d.reposID, false, d.class.Number, objID, m.Number, text))...)
		d.indexInsertLocked(m, objID, text)
	}

	if _, err := d.records.Update(d.recordBlobID(objID), []byte(body.String()), 0); err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.Update", "write record blob", err)
	}
	if _, err := d.deltaLog.Write(logLines); err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.Update", "write delta log", err)
	}
	if err := d.deltaLog.Sync(); err != nil {
		return dberr.Wrap(dberr.KindIO, "repository.Update", "flush delta log", err)
	}

	if d.sink != nil {
		if err := d.sink.SendDelta(logLines); err != nil {
			log.Logger.Warn().Err(err).Str("repository", d.name).Msg("delta client forward failed")
		}
	}
	return nil
}

// Delete tombstones objID (spec §4.9, gated the same as RAM.Delete).
func (d *Disk) Delete(objID uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.deletesEnabled {
		return dberr.New(dberr.KindSequence, "repository.Delete", "deletes are disabled for this repository")
	}
	if objID == 0 || objID > d.population {
		return dberr.New(dberr.KindRange, "repository.Delete", fmt.Sprintf("object id %d out of range", objID))
	}
	d.tombstones[objID] = true
	return nil
}

// Verify checks the record blob store's own integrity and that no member
// blob reference belongs to an object ID beyond the current population.
// Tombstones are not checked.
func (d *Disk) Verify() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.records.Integrity(); err != nil {
		return dberr.Wrap(dberr.KindFormat, "repository.Verify", "record store integrity", err)
	}
	for memberNo, byObj := range d.blobIDs {
		ids := make([]uint32, 0, len(byObj))
		for objID := range byObj {
			if objID == 0 || objID > d.population {
				return dberr.New(dberr.KindFormat, "repository.Verify", fmt.Sprintf("member %d has blob ref for out-of-range object %d", memberNo, objID))
			}
			ids = append(ids, objID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return nil
}

func (d *Disk) Population() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.population
}
