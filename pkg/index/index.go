/*
Package index implements the three index kinds described in spec §4.7
(C8): unique-key, enum, and text. All three share the common shape
insert/delete/lookup/size; the repository (pkg/repository) keeps a
per-member index handle and dispatches to whichever kind applies.
*/
package index

import (
	"strings"
	"unicode"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/idset"
)

// UniqueKeyIndex is a strict one-to-one map from value to object ID. On
// Insert with a value already present, the containing repository refuses
// the insert (spec §4.7 "Unique-key index"). Keys are the natural type
// for numeric/IP/date-time members, or the interned string number for
// string-like members.
type UniqueKeyIndex struct {
	byValue map[uint64]uint32
}

// NewUniqueKeyIndex returns an empty unique-key index.
func NewUniqueKeyIndex() *UniqueKeyIndex {
	return &UniqueKeyIndex{byValue: make(map[uint64]uint32)}
}

// Insert adds value -> objID. Returns dberr.KindDuplicate if value is
// already present.
func (u *UniqueKeyIndex) Insert(value uint64, objID uint32) error {
	if _, ok := u.byValue[value]; ok {
		return dberr.New(dberr.KindDuplicate, "index.UniqueKeyIndex.Insert", "value already claimed by object")
	}
	u.byValue[value] = objID
	return nil
}

// Delete removes value's entry, if present.
func (u *UniqueKeyIndex) Delete(value uint64) {
	delete(u.byValue, value)
}

// Lookup returns the object ID claiming value.
func (u *UniqueKeyIndex) Lookup(value uint64) (uint32, bool) {
	id, ok := u.byValue[value]
	return id, ok
}

// Size returns the number of distinct values indexed.
func (u *UniqueKeyIndex) Size() int {
	return len(u.byValue)
}

// enumBitmapSlots is the number of direct-addressed slots an enum index
// keeps when its item count is small enough (spec decision: "bitmap when
// len(items) <= 64").
const enumBitmapSlots = 64

// EnumIndex maps each enumerated value to the Id-Set of objects that
// selected it, covering enum-typed members and other low-cardinality
// categorical members such as 8/16-bit integers (spec §4.7 "Enum index").
//
// Two representations share this contract. When the member's item count is
// known and <= enumBitmapSlots, codes are direct-addressed into a fixed
// 64-slot array (the "bitmap" representation: code selects a slot instead
// of hashing into a map). Otherwise codes fall back to a sparse map keyed
// by the code value (the "string-number list" representation), since a
// fixed array sized for an unbounded code range would waste memory.
type EnumIndex struct {
	bitmap []*idset.Set // len enumBitmapSlots when bitmap-eligible, nil otherwise
	byCode map[int64]*idset.Set
}

// NewEnumIndex returns an empty enum index. itemCount is the number of
// distinct values the indexed member can take; pass 0 when unknown. An
// itemCount in (0, enumBitmapSlots] selects the direct-addressed bitmap
// representation, otherwise the sparse map representation is used.
func NewEnumIndex(itemCount int) *EnumIndex {
	if itemCount > 0 && itemCount <= enumBitmapSlots {
		return &EnumIndex{bitmap: make([]*idset.Set, enumBitmapSlots)}
	}
	return &EnumIndex{byCode: make(map[int64]*idset.Set)}
}

// Insert records that objID selected code.
func (e *EnumIndex) Insert(code int64, objID uint32) {
	if e.bitmap != nil && code >= 0 && code < enumBitmapSlots {
		if e.bitmap[code] == nil {
			e.bitmap[code] = idset.New()
		}
		e.bitmap[code].Insert(objID)
		return
	}
	s, ok := e.byCode[code]
	if !ok {
		s = idset.New()
		e.byCode[code] = s
	}
	s.Insert(objID)
}

// Delete removes objID from code's set.
func (e *EnumIndex) Delete(code int64, objID uint32) {
	if e.bitmap != nil && code >= 0 && code < enumBitmapSlots {
		if s := e.bitmap[code]; s != nil {
			s.Remove(objID)
		}
		return
	}
	if s, ok := e.byCode[code]; ok {
		s.Remove(objID)
	}
}

// Lookup returns the Id-Set of objects that selected code.
func (e *EnumIndex) Lookup(code int64) (*idset.Set, bool) {
	if e.bitmap != nil && code >= 0 && code < enumBitmapSlots {
		s := e.bitmap[code]
		return s, s != nil
	}
	s, ok := e.byCode[code]
	return s, ok
}

// Size returns the number of distinct codes indexed.
func (e *EnumIndex) Size() int {
	if e.bitmap != nil {
		n := 0
		for _, s := range e.bitmap {
			if s != nil {
				n++
			}
		}
		return n
	}
	return len(e.byCode)
}

// TextIndex maps each tokenized word to the Id-Set of documents
// containing it, populated by tokenizing indexable text / text-document
// members on insert (spec §4.7 "Text index").
type TextIndex struct {
	byWord map[string]*idset.Set
}

// NewTextIndex returns an empty text index.
func NewTextIndex() *TextIndex {
	return &TextIndex{byWord: make(map[string]*idset.Set)}
}

// Tokenize splits text into lowercase word boundaries, the same boundary
// rule used for both insert-time indexing and eval-time query terms.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Insert tokenizes text and records objID against every distinct word.
func (x *TextIndex) Insert(objID uint32, text string) {
	for _, w := range Tokenize(text) {
		s, ok := x.byWord[w]
		if !ok {
			s = idset.New()
			x.byWord[w] = s
		}
		s.Insert(objID)
	}
}

// Delete tokenizes text and removes objID from every distinct word's set.
func (x *TextIndex) Delete(objID uint32, text string) {
	for _, w := range Tokenize(text) {
		if s, ok := x.byWord[w]; ok {
			s.Remove(objID)
		}
	}
}

// Size returns the number of distinct words indexed.
func (x *TextIndex) Size() int {
	return len(x.byWord)
}

// Op is an AND/OR combinator in a text query (spec §4.7 "eval(criteria,
// out) evaluates a simple AND/OR over word id-sets").
type Op int

const (
	OpAnd Op = iota
	OpOr
)

// Eval evaluates words combined by op and returns the resulting Id-Set.
// Unknown words contribute an empty set.
func (x *TextIndex) Eval(op Op, words ...string) *idset.Set {
	result := idset.New()
	if len(words) == 0 {
		return result
	}
	first, ok := x.byWord[strings.ToLower(words[0])]
	if ok {
		result = first.Copy()
	} else if op == OpAnd {
		return result // AND with an unseen word is always empty
	}
	for _, w := range words[1:] {
		s, ok := x.byWord[strings.ToLower(w)]
		if !ok {
			if op == OpAnd {
				return idset.New()
			}
			continue
		}
		if op == OpAnd {
			result.And(s)
		} else {
			result.Or(s)
		}
	}
	return result
}
