package container

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/hadronzoo/deltadb/pkg/atom"
	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/schema"
)

type entry struct {
	key  ROMID
	code uint32
}

// Container holds one record of a pure class: a sorted multi-map from
// ROMID to a 32-bit code, a side array of 64-bit large values, and a side
// array of owned strings (spec §3 "Object Container").
type Container struct {
	key   string
	class *schema.Class

	entries []entry // kept sorted by ROMID
	large   []uint64
	strs    []string
}

// Init binds the container to a frozen class; key is an optional
// caller-chosen name for server-side transient object tables (spec §4.6
// "init(key, class)"). If key is empty, a random one is generated so
// transient containers are always addressable.
func Init(key string, class *schema.Class) (*Container, error) {
	if class == nil {
		return nil, dberr.New(dberr.KindArgument, "container.Init", "class is nil")
	}
	if class.State() != schema.ClassFrozen {
		return nil, dberr.New(dberr.KindSequence, "container.Init", fmt.Sprintf("class %q is not frozen", class.Name))
	}
	if key == "" {
		key = uuid.NewString()
	}
	return &Container{key: key, class: class}, nil
}

// Key returns the container's caller-chosen (or generated) name.
func (c *Container) Key() string {
	return c.key
}

// Class returns the bound class.
func (c *Container) Class() *schema.Class {
	return c.class
}

// IsNull reports whether no value was ever set (spec §4.6 "isNull()").
func (c *Container) IsNull() bool {
	return len(c.entries) == 0
}

func (c *Container) findMember(memberNo uint32) (*schema.Member, error) {
	for _, m := range c.class.Members() {
		if m.Number == memberNo {
			return m, nil
		}
	}
	return nil, dberr.New(dberr.KindArgument, "container.SetValue", fmt.Sprintf("member %d not found on class %q", memberNo, c.class.Name))
}

func (c *Container) findMemberByName(name string) (*schema.Member, error) {
	m, ok := c.class.MemberByName(name)
	if !ok {
		return nil, dberr.New(dberr.KindArgument, "container.SetValue", fmt.Sprintf("member %q not found on class %q", name, c.class.Name))
	}
	return m, nil
}

// SetValueByName parses text against the named member's base type and
// stores it (spec §4.6 "setValue(name, text)").
func (c *Container) SetValueByName(objectID uint32, name, text string) error {
	m, err := c.findMemberByName(name)
	if err != nil {
		return err
	}
	a := atom.New()
	if err := a.SetValue(m.Type.Base, text); err != nil {
		return err
	}
	return c.SetValue(objectID, m.Number, a)
}

// SetValueText parses text against memberNo's base type and stores it
// (spec §4.6 "setValue(memberNo, text)").
func (c *Container) SetValueText(objectID, memberNo uint32, text string) error {
	m, err := c.findMember(memberNo)
	if err != nil {
		return err
	}
	a := atom.New()
	if err := a.SetValue(m.Type.Base, text); err != nil {
		return err
	}
	return c.SetValue(objectID, memberNo, a)
}

// SetValue validates the member exists on the bound class, coerces the
// atom to the member's base type, and stores it under the ROMID formed
// from the class, objectID, and memberNo (spec §4.6 "setValue(memberNo,
// atom)"). objectID is 1 for the container's top-level record; nested
// sub-class records use higher object IDs within the same flat map.
func (c *Container) SetValue(objectID, memberNo uint32, a *atom.Atom) error {
	m, err := c.findMember(memberNo)
	if err != nil {
		return err
	}
	if a.IsClear() {
		return dberr.New(dberr.KindArgument, "container.SetValue", "atom is clear")
	}
	if a.Base() != m.Type.Base {
		return dberr.New(dberr.KindType, "container.SetValue", fmt.Sprintf("member %q expects %s, got %s", m.Name, m.Type.Base, a.Base()))
	}

	var code uint32
	switch {
	case m.Type.Base.Is64Bit():
		code = c.appendLarge(encodeLarge(a))
	case m.Type.Base.IsStringLike():
		code = c.appendString(a.Str())
	case m.Type.Base.IsBlob():
		code = uint32(a.Uint64())
	default:
		code = encodeInline(a)
	}

	key := ROMID{ClassID: c.class.Number, ObjectID: objectID, MemberID: memberNo}
	c.put(key, code)
	return nil
}

// GetValue decodes the value stored under romid back to an atom: for
// <=32-bit values the stored code is read directly; for 64-bit values it
// indexes into the large-value array; for string-like it indexes into the
// string array (spec §4.6 "getValue(atom, romid)").
func (c *Container) GetValue(romid ROMID, base schema.BaseType) (*atom.Atom, bool) {
	code, ok := c.get(romid)
	if !ok {
		return nil, false
	}
	a := atom.New()
	switch {
	case base.Is64Bit():
		decodeLarge(a, base, c.large[code])
	case base.IsStringLike():
		_ = a.SetValue(base, c.strs[code])
	case base.IsBlob():
		_ = a.SetChain(base, nil) // blob bytes are fetched via the blob repository, not stored here
	default:
		decodeInline(a, base, code)
	}
	return a, true
}

// ListSubs returns the object IDs of all embedded sub-records of classID
// by scanning the ROMID key space in range [classId:0:0, classId+1:0:0)
// (spec §4.6 "listSubs").
func (c *Container) ListSubs(classID uint32) []uint32 {
	lo, hi := rangeForClass(classID)
	seen := make(map[uint32]struct{})
	var out []uint32
	for _, e := range c.entries {
		if e.key.Less(lo) || !e.key.Less(hi) {
			continue
		}
		if _, dup := seen[e.key.ObjectID]; !dup {
			seen[e.key.ObjectID] = struct{}{}
			out = append(out, e.key.ObjectID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Container) appendLarge(v uint64) uint32 {
	c.large = append(c.large, v)
	return uint32(len(c.large) - 1)
}

func (c *Container) appendString(s string) uint32 {
	c.strs = append(c.strs, s)
	return uint32(len(c.strs) - 1)
}

func (c *Container) put(key ROMID, code uint32) {
	i := sort.Search(len(c.entries), func(i int) bool { return !c.entries[i].key.Less(key) })
	if i < len(c.entries) && c.entries[i].key == key {
		c.entries[i].code = code
		return
	}
	c.entries = append(c.entries, entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = entry{key: key, code: code}
}

func (c *Container) get(key ROMID) (uint32, bool) {
	i := sort.Search(len(c.entries), func(i int) bool { return !c.entries[i].key.Less(key) })
	if i < len(c.entries) && c.entries[i].key == key {
		return c.entries[i].code, true
	}
	return 0, false
}

func encodeInline(a *atom.Atom) uint32 {
	switch a.Base() {
	case schema.BaseBool:
		if a.Bool() {
			return 1
		}
		return 0
	case schema.BaseFloat64:
		return uint32(a.Float64())
	case schema.BaseUint8, schema.BaseUint16, schema.BaseUint32:
		return uint32(a.Uint64())
	default:
		return uint32(a.Int64())
	}
}

func decodeInline(a *atom.Atom, base schema.BaseType, code uint32) {
	switch base {
	case schema.BaseBool:
		if code != 0 {
			_ = a.SetValue(base, "true")
		} else {
			_ = a.SetValue(base, "false")
		}
	case schema.BaseUint8, schema.BaseUint16, schema.BaseUint32:
		_ = a.SetValue(base, fmt.Sprintf("%d", code))
	default:
		_ = a.SetValue(base, fmt.Sprintf("%d", int32(code)))
	}
}

func encodeLarge(a *atom.Atom) uint64 {
	switch a.Base() {
	case schema.BaseFloat64:
		return math.Float64bits(a.Float64())
	case schema.BaseDateTime, schema.BaseTimestamp:
		return uint64(a.Time().Unix())
	case schema.BaseInt64:
		return uint64(a.Int64())
	default:
		return a.Uint64()
	}
}

func decodeLarge(a *atom.Atom, base schema.BaseType, v uint64) {
	switch base {
	case schema.BaseFloat64:
		_ = a.SetValue(base, strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64))
	case schema.BaseTimestamp:
		_ = a.SetValue(base, fmt.Sprintf("%d", int64(v)))
	default:
		_ = a.SetValue(base, fmt.Sprintf("%d", v))
	}
}
