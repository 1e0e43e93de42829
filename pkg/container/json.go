package container

import (
	"encoding/json"
	"fmt"

	"github.com/hadronzoo/deltadb/pkg/atom"
)

// ImportError records one member that ImportJSON could not apply, by
// member name and reason, instead of aborting the whole import. It carries
// no line or column position.
type ImportError struct {
	Member string
	Reason string
}

func (e ImportError) Error() string {
	return fmt.Sprintf("member %q: %s", e.Member, e.Reason)
}

// ImportJSON populates the container's top-level record (objectID 1) from
// a JSON object. Unknown member names are ignored; type mismatches drop
// the member rather than aborting the import; every dropped member is
// recorded and returned as a slice of ImportError (spec §4.6 "JSON import
// rules").
func (c *Container) ImportJSON(chain []byte) []ImportError {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(chain, &raw); err != nil {
		return []ImportError{{Member: "", Reason: "not a JSON object: " + err.Error()}}
	}

	var errs []ImportError
	for name, val := range raw {
		m, ok := c.class.MemberByName(name)
		if !ok {
			continue // unknown member names are ignored
		}

		if m.IsMultiValued() {
			var arr []json.RawMessage
			if err := json.Unmarshal(val, &arr); err != nil {
				errs = append(errs, ImportError{Member: name, Reason: "expected array for multi-valued member"})
				continue
			}
			ok := true
			for i, elemRaw := range arr {
				text, derr := jsonScalarToText(elemRaw)
				if derr != nil {
					errs = append(errs, ImportError{Member: name, Reason: derr.Error()})
					ok = false
					continue
				}
				a := atom.New()
				if err := a.SetValue(m.Type.Base, text); err != nil {
					errs = append(errs, ImportError{Member: name, Reason: err.Error()})
					ok = false
					continue
				}
				if err := c.SetValue(uint32(i+1), m.Number, a); err != nil {
					errs = append(errs, ImportError{Member: name, Reason: err.Error()})
					ok = false
				}
			}
			_ = ok
			continue
		}

		text, derr := jsonScalarToText(val)
		if derr != nil {
			errs = append(errs, ImportError{Member: name, Reason: derr.Error()})
			continue
		}
		a := atom.New()
		if err := a.SetValue(m.Type.Base, text); err != nil {
			errs = append(errs, ImportError{Member: name, Reason: err.Error()})
			continue
		}
		if err := c.SetValue(1, m.Number, a); err != nil {
			errs = append(errs, ImportError{Member: name, Reason: err.Error()})
		}
	}
	return errs
}

// jsonScalarToText coerces a single JSON scalar value (string, number or
// boolean) to its textual form for atom.SetValue. The text of a JSON
// string is passed on whatever the member's base type, so a numeric
// string such as "5" is accepted by an integer member; only the base
// type's own parse and syntax checks in SetValue apply.
func jsonScalarToText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return fmt.Sprintf("%v", f), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("unsupported JSON scalar")
}

// ExportJSON emits the top-level record (objectID 1) as a flat JSON
// object whose values are the Str() text of each member. A multi-valued
// member emits an array of its values across the object IDs that
// ListSubs finds for the container's class. The walk is not recursive:
// sub-class records are not emitted as nested objects.
func (c *Container) ExportJSON() ([]byte, error) {
	obj := make(map[string]interface{})
	for _, m := range c.class.Members() {
		romid := ROMID{ClassID: c.class.Number, ObjectID: 1, MemberID: m.Number}
		if m.IsMultiValued() {
			subs := c.ListSubs(c.class.Number)
			var vals []interface{}
			for _, objID := range subs {
				r := ROMID{ClassID: c.class.Number, ObjectID: objID, MemberID: m.Number}
				a, ok := c.GetValue(r, m.Type.Base)
				if !ok {
					continue
				}
				vals = append(vals, a.Str())
			}
			if vals != nil {
				obj[m.Name] = vals
			}
			continue
		}
		a, ok := c.GetValue(romid, m.Type.Base)
		if !ok {
			continue
		}
		obj[m.Name] = a.Str()
	}
	return json.Marshal(obj)
}
