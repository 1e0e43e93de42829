/*
Package adp implements the Application Delta Profile registry (spec §4.4,
C4): the per-application schema catalogue that gives every type, class,
member, and repository a name and a stable numeric ID.

An ADP is process-wide: one Registry per running application, initialized
once at startup and outliving every repository it describes (spec §9
"Global state").
*/
package adp

import (
	"fmt"
	"sync"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/schema"
)

// ID partitions, spec §4.4/§6.
const (
	classSystemMin = 1
	classSystemMax = 20
	classUserMin   = 21
	classUserMax   = 50
	classConfigMin = 51
	classConfigMax = 1000
	classCompositeMin = 1001

	memberSystemMin = 1
	memberSystemMax = 500
	memberUserMin   = 501
	memberUserMax   = 1000
	memberConfigMin = 1001
)

// systemClassIDs maps the fixed, pre-defined names every application's
// system classes must use onto their reserved IDs 1..6 (spec §4.4).
var systemClassIDs = map[string]uint32{
	"SysStringTable": 1,
	"SysDomainTable": 2,
	"SysEmailTable":  3,
	"SysAtom":        4,
	"SysBlobHeader":  5,
	"SysDeltaLog":    6,
}

// Registry is one application's ADP: types, classes, members, enums,
// repositories, all keyed by name and by stable numeric ID.
type Registry struct {
	mu sync.RWMutex

	appName string

	types map[string]*schema.DataType
	enums map[string]*schema.Enum

	classesByName map[string]*schema.Class
	classesByID   map[uint32]*schema.Class

	membersByID map[uint32]*Member

	nextUserClassID      uint32
	nextConfigClassID    uint32
	nextCompositeClassID uint32
	nextSystemMemberID   uint32
	nextUserMemberID     uint32
	nextConfigMemberID   uint32

	// subClasses maps a parent class name to its direct registered
	// sub-classes, for isSubClass range scans (spec §4.4).
	subClasses map[string][]*schema.Class

	objRepos  map[string]struct{}
	blobRepos map[string]struct{}
}

// Member pairs a schema.Member with the class it belongs to, the unit
// registerMember assigns a stable ID to.
type Member struct {
	Class  *schema.Class
	Member *schema.Member
}

// New returns an empty Registry for appName.
func New(appName string) *Registry {
	return &Registry{
		appName:              appName,
		types:                make(map[string]*schema.DataType),
		enums:                make(map[string]*schema.Enum),
		classesByName:        make(map[string]*schema.Class),
		classesByID:          make(map[uint32]*schema.Class),
		membersByID:          make(map[uint32]*Member),
		subClasses:           make(map[string][]*schema.Class),
		objRepos:             make(map[string]struct{}),
		blobRepos:            make(map[string]struct{}),
		nextUserClassID:      classUserMin,
		nextConfigClassID:    classConfigMin,
		nextCompositeClassID: classCompositeMin,
		nextSystemMemberID:   memberSystemMin,
		nextUserMemberID:     memberUserMin,
		nextConfigMemberID:   memberConfigMin,
	}
}

// InitStandard pre-registers every built-in type under its fixed name
// (spec §4.4 "constructed empty; initStandard pre-registers every
// built-in type").
func (r *Registry) InitStandard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, dt := range schema.BuiltinTypes() {
		r.types[name] = dt
	}
}

// AppName returns the application name this registry was constructed with.
func (r *Registry) AppName() string {
	return r.appName
}

// RegisterRegex inserts an application-defined regex-validated string
// type after a duplicate-name check (spec §4.4 "registerRegex").
func (r *Registry) RegisterRegex(name, pattern string) (*schema.DataType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return nil, dberr.New(dberr.KindDuplicate, "adp.RegisterRegex", fmt.Sprintf("type %q already registered", name))
	}
	dt, err := schema.NewRegexType(name, pattern)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFormat, "adp.RegisterRegex", "invalid pattern", err)
	}
	r.types[name] = dt
	return dt, nil
}

// RegisterEnum inserts an enum type after a duplicate-name check (spec
// §4.4 "registerEnum").
func (r *Registry) RegisterEnum(e *schema.Enum) (*schema.DataType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.enums[e.Name]; exists {
		return nil, dberr.New(dberr.KindDuplicate, "adp.RegisterEnum", fmt.Sprintf("enum %q already registered", e.Name))
	}
	if _, exists := r.types[e.Name]; exists {
		return nil, dberr.New(dberr.KindDuplicate, "adp.RegisterEnum", fmt.Sprintf("type %q already registered", e.Name))
	}
	r.enums[e.Name] = e
	dt := schema.NewEnumType(e.Name, e)
	r.types[e.Name] = dt
	return dt, nil
}

// TypeByName looks up a previously registered type (built-in, enum, or
// regex) by name.
func (r *Registry) TypeByName(name string) (*schema.DataType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.types[name]
	return dt, ok
}

// RegisterClass assigns c a stable ID by its designation and registers it
// by name. Refuses duplicate names, refuses classes that are not frozen,
// and for system classes refuses any name outside the fixed pre-defined
// set (spec §4.4 "registerClass").
func (r *Registry) RegisterClass(c *schema.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.State() != schema.ClassFrozen {
		return dberr.New(dberr.KindSequence, "adp.RegisterClass", fmt.Sprintf("class %q is not frozen", c.Name))
	}
	if _, exists := r.classesByName[c.Name]; exists {
		return dberr.New(dberr.KindDuplicate, "adp.RegisterClass", fmt.Sprintf("class %q already registered", c.Name))
	}

	var id uint32
	switch c.Designation {
	case schema.DesignationSystem:
		fixedID, ok := systemClassIDs[c.Name]
		if !ok {
			return dberr.New(dberr.KindArgument, "adp.RegisterClass", fmt.Sprintf("system class %q is not one of the pre-defined names", c.Name))
		}
		id = fixedID
	case schema.DesignationUser:
		if r.nextUserClassID > classUserMax {
			return dberr.New(dberr.KindRange, "adp.RegisterClass", "user class ID partition exhausted")
		}
		id = r.nextUserClassID
		r.nextUserClassID++
	case schema.DesignationConfig:
		if r.nextConfigClassID > classConfigMax {
			return dberr.New(dberr.KindRange, "adp.RegisterClass", "config class ID partition exhausted")
		}
		id = r.nextConfigClassID
		r.nextConfigClassID++
	default:
		return dberr.New(dberr.KindArgument, "adp.RegisterClass", fmt.Sprintf("class %q has no designation", c.Name))
	}

	c.Number = id
	r.classesByName[c.Name] = c
	r.classesByID[id] = c
	if c.Parent != nil {
		r.subClasses[c.Parent.Name] = append(r.subClasses[c.Parent.Name], c)
	}
	return nil
}

// RegisterComposite gives a sub-class-in-context combination its own
// class ID in the composite range 1001+ (spec §4.4 "registerComposite"),
// keyed as "OuterClass.memberName" so the Object Container can distinguish
// two sub-class embeddings of the same type within the same outer record.
func (r *Registry) RegisterComposite(outerClass, memberName string, c *schema.Class) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := outerClass + "." + memberName
	if _, exists := r.classesByName[key]; exists {
		return 0, dberr.New(dberr.KindDuplicate, "adp.RegisterComposite", fmt.Sprintf("composite %q already registered", key))
	}
	id := r.nextCompositeClassID
	r.nextCompositeClassID++
	r.classesByName[key] = c
	r.classesByID[id] = c
	return id, nil
}

// RegisterMember assigns a member ID from the partition matching the host
// class's designation (spec §4.4 "registerMember").
func (r *Registry) RegisterMember(c *schema.Class, m *schema.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id uint32
	switch c.Designation {
	case schema.DesignationSystem:
		if r.nextSystemMemberID > memberSystemMax {
			return dberr.New(dberr.KindRange, "adp.RegisterMember", "system member ID partition exhausted")
		}
		id = r.nextSystemMemberID
		r.nextSystemMemberID++
	case schema.DesignationUser:
		if r.nextUserMemberID > memberUserMax {
			return dberr.New(dberr.KindRange, "adp.RegisterMember", "user member ID partition exhausted")
		}
		id = r.nextUserMemberID
		r.nextUserMemberID++
	case schema.DesignationConfig:
		id = r.nextConfigMemberID
		r.nextConfigMemberID++
	default:
		return dberr.New(dberr.KindArgument, "adp.RegisterMember", "member's class has no designation")
	}

	m.Number = id
	r.membersByID[id] = &Member{Class: c, Member: m}
	return nil
}

// RegisterObjRepos records name as a registered object repository,
// duplicate-name check then insert (spec §4.4).
func (r *Registry) RegisterObjRepos(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.objRepos[name]; exists {
		return dberr.New(dberr.KindDuplicate, "adp.RegisterObjRepos", fmt.Sprintf("object repository %q already registered", name))
	}
	r.objRepos[name] = struct{}{}
	return nil
}

// RegisterBlobRepos records name as a registered blob repository,
// duplicate-name check then insert (spec §4.4).
func (r *Registry) RegisterBlobRepos(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.blobRepos[name]; exists {
		return dberr.New(dberr.KindDuplicate, "adp.RegisterBlobRepos", fmt.Sprintf("blob repository %q already registered", name))
	}
	r.blobRepos[name] = struct{}{}
	return nil
}

// ClassByName looks up a registered class by name.
func (r *Registry) ClassByName(name string) (*schema.Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classesByName[name]
	return c, ok
}

// ClassByID looks up a registered class by its stable numeric ID.
func (r *Registry) ClassByID(id uint32) (*schema.Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classesByID[id]
	return c, ok
}

// IsSubClass answers by range-scanning the parent-name to sub-classes
// multi-map (spec §4.4 "isSubClass").
func (r *Registry) IsSubClass(parent, candidate *schema.Class) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subClasses[parent.Name] {
		if sub.Name == candidate.Name {
			return true
		}
		if r.isSubClassLocked(sub, candidate) {
			return true
		}
	}
	return false
}

func (r *Registry) isSubClassLocked(parent, candidate *schema.Class) bool {
	for _, sub := range r.subClasses[parent.Name] {
		if sub.Name == candidate.Name {
			return true
		}
		if r.isSubClassLocked(sub, candidate) {
			return true
		}
	}
	return false
}

// Classes returns every registered class in ascending ID order, as
// required for ADP XML export (spec §4.4/§6).
func (r *Registry) Classes() []*schema.Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.Class, 0, len(r.classesByID))
	for _, c := range r.classesByID {
		out = append(out, c)
	}
	sortClassesByID(out)
	return out
}

// Enums returns every registered enum, in no particular order (ADP XML
// export emits enums before classes; spec §4.4 does not require enums to
// be ordered).
func (r *Registry) Enums() []*schema.Enum {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.Enum, 0, len(r.enums))
	for _, e := range r.enums {
		out = append(out, e)
	}
	return out
}

func sortClassesByID(cs []*schema.Class) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j-1].Number > cs[j].Number; j-- {
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
}
