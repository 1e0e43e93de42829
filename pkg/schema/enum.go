package schema

import "fmt"

// EnumItem is one display string in an Enum, with either a default
// ordinal or an application-supplied numeric code (spec §3 "Enum").
type EnumItem struct {
	Display string
	Code    int
}

// Enum is an ordered list of display strings (spec §3).
type Enum struct {
	Name       string
	Items      []EnumItem
	maxItemLen int
}

// NewEnum returns an empty, named Enum.
func NewEnum(name string) *Enum {
	return &Enum{Name: name}
}

// AddItem appends a display string with a default ordinal code (its
// position in Items).
func (e *Enum) AddItem(display string) {
	e.AddItemWithCode(display, len(e.Items))
}

// AddItemWithCode appends a display string with an application-supplied
// numeric code.
func (e *Enum) AddItemWithCode(display string, code int) {
	e.Items = append(e.Items, EnumItem{Display: display, Code: code})
	if len(display) > e.maxItemLen {
		e.maxItemLen = len(display)
	}
}

// MaxItemLen returns the longest display string's length, so front-ends
// can size controls (spec §3).
func (e *Enum) MaxItemLen() int {
	return e.maxItemLen
}

// CodeOf returns the numeric code for a display string.
func (e *Enum) CodeOf(display string) (int, bool) {
	for _, it := range e.Items {
		if it.Display == display {
			return it.Code, true
		}
	}
	return 0, false
}

// DisplayOf returns the display string for a numeric code.
func (e *Enum) DisplayOf(code int) (string, bool) {
	for _, it := range e.Items {
		if it.Code == code {
			return it.Display, true
		}
	}
	return "", false
}

// BitmapEligible reports whether this enum is small enough to use the
// bitmap representation chosen for multi-value enum members (SPEC_FULL.md
// Open Question 3: bitmap when item count <= 64, else string-number list).
func (e *Enum) BitmapEligible() bool {
	return len(e.Items) <= 64
}

func (e *Enum) String() string {
	return fmt.Sprintf("Enum(%s, %d items)", e.Name, len(e.Items))
}
