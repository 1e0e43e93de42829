/*
Package atom implements the tagged scalar value used at every public API
boundary of this module (spec §3/§4.5, C6): a fixed-size union carrying
one value of any base type plus a status flag, used instead of templated
polymorphism (spec §3 "Atom").
*/
package atom

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/schema"
)

// Status is the atom's set/clear/holds-chain/holds-string-number flag
// (spec §3 "Atom").
type Status int

const (
	StatusClear Status = iota
	StatusSet
	StatusHoldsChain
	StatusHoldsStringNumber
)

// dateLayout, timeOfDayLayout, dateTimeLayout are the canonical string
// forms accepted and produced for date/time base types (spec §4.5
// "date/time accept the canonical string form").
const (
	dateLayout      = "2006-01-02"
	timeOfDayLayout = "15:04:05"
	dateTimeLayout  = "2006-01-02 15:04:05"
)

// Atom is a tagged scalar: one value of any base type plus a status flag.
type Atom struct {
	base   schema.BaseType
	status Status

	i64 int64
	u64 uint64
	f64 float64
	b   bool
	tb  int8 // -1/0/1 for tribool false/unknown/true
	s   string
	t   time.Time
	bin []byte
}

// New returns a clear (untyped-null) atom.
func New() *Atom {
	return &Atom{status: StatusClear}
}

// Clear returns the atom to the untyped-null state (spec §4.5 "clear()").
func (a *Atom) Clear() {
	*a = Atom{status: StatusClear}
}

// IsClear reports whether the atom has never been set.
func (a *Atom) IsClear() bool {
	return a.status == StatusClear
}

// Base returns the atom's carried base type. Meaningless if IsClear.
func (a *Atom) Base() schema.BaseType {
	return a.base
}

// SetAtomValue directly assigns the raw payload word from another atom of
// the same base type (spec §4.5 "setValue(base, atomval)").
func (a *Atom) SetAtomValue(base schema.BaseType, src *Atom) error {
	if src.IsClear() {
		a.Clear()
		return nil
	}
	if src.base != base {
		return dberr.New(dberr.KindType, "atom.SetAtomValue", fmt.Sprintf("source atom is %s, want %s", src.base, base))
	}
	*a = *src
	return nil
}

// SetChain assigns raw bytes, legal only for binary and text-document base
// types (spec §4.5 "setValue(base, chain): only for binary and
// text-document").
func (a *Atom) SetChain(base schema.BaseType, data []byte) error {
	if !base.IsBlob() {
		return dberr.New(dberr.KindType, "atom.SetChain", fmt.Sprintf("base %s does not accept chain values", base))
	}
	a.base = base
	a.status = StatusHoldsChain
	a.bin = append([]byte(nil), data...)
	return nil
}

// SetNumber infers the smallest integer base that holds the parsed number
// (spec §4.5 "setNumber(text): infers the smallest base that holds the
// parsed number").
func (a *Atom) SetNumber(text string) error {
	n, err := parseInt(text)
	if err != nil {
		return dberr.Wrap(dberr.KindFormat, "atom.SetNumber", "bad numeric literal", err)
	}
	switch {
	case n >= -(1<<7) && n < 1<<7:
		return a.SetValue(schema.BaseInt8, text)
	case n >= -(1<<15) && n < 1<<15:
		return a.SetValue(schema.BaseInt16, text)
	case n >= -(1<<31) && n < 1<<31:
		return a.SetValue(schema.BaseInt32, text)
	default:
		return a.SetValue(schema.BaseInt64, text)
	}
}

// SetValue parses text according to base (spec §4.5 "setValue(base,
// text)"). Failure leaves the atom clear and returns a dberr.KindFormat
// error when text does not parse or fails a syntax check, or
// dberr.KindRange when an integer is outside base's range; the
// dberr.KindArgument (bad-value) kind is not used here.
func (a *Atom) SetValue(base schema.BaseType, text string) error {
	switch base {
	case schema.BaseFloat64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad float64", err)
		}
		a.base, a.status, a.f64 = base, StatusSet, f
		return nil

	case schema.BaseInt8, schema.BaseInt16, schema.BaseInt32, schema.BaseInt64:
		n, err := parseInt(text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad signed integer", err)
		}
		if err := checkSignedRange(base, n); err != nil {
			a.Clear()
			return err
		}
		a.base, a.status, a.i64 = base, StatusSet, n
		return nil

	case schema.BaseUint8, schema.BaseUint16, schema.BaseUint32, schema.BaseUint64:
		n, err := parseUint(text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad unsigned integer", err)
		}
		if err := checkUnsignedRange(base, n); err != nil {
			a.Clear()
			return err
		}
		a.base, a.status, a.u64 = base, StatusSet, n
		return nil

	case schema.BaseBool:
		b, err := parseBool(text)
		if err != nil {
			a.Clear()
			return err
		}
		a.base, a.status, a.b = base, StatusSet, b
		return nil

	case schema.BaseTriBool:
		tb, err := parseTriBool(text)
		if err != nil {
			a.Clear()
			return err
		}
		a.base, a.status, a.tb = base, StatusSet, tb
		return nil

	case schema.BaseDate:
		t, err := time.Parse(dateLayout, text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad date", err)
		}
		a.base, a.status, a.t = base, StatusSet, t
		return nil

	case schema.BaseTimeOfDay:
		t, err := time.Parse(timeOfDayLayout, text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad time-of-day", err)
		}
		a.base, a.status, a.t = base, StatusSet, t
		return nil

	case schema.BaseDateTime:
		t, err := time.Parse(dateTimeLayout, text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad datetime", err)
		}
		a.base, a.status, a.t = base, StatusSet, t
		return nil

	case schema.BaseTimestamp:
		n, err := parseInt(text)
		if err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", "bad timestamp", err)
		}
		a.base, a.status, a.t = base, StatusSet, time.Unix(n, 0).UTC()
		return nil

	case schema.BaseIPAddr:
		ip := net.ParseIP(text)
		if ip == nil {
			a.Clear()
			return dberr.New(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad IP address %q", text))
		}
		a.base, a.status, a.s = base, StatusSet, ip.String()
		return nil

	case schema.BaseDomain:
		if !validDomain(text) {
			a.Clear()
			return dberr.New(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad domain %q", text))
		}
		a.base, a.status, a.s = base, StatusSet, text
		return nil

	case schema.BaseEmail:
		if _, err := mail.ParseAddress(text); err != nil {
			a.Clear()
			return dberr.Wrap(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad email %q", text), err)
		}
		a.base, a.status, a.s = base, StatusSet, text
		return nil

	case schema.BaseURL:
		u, err := url.Parse(text)
		if err != nil || u.Scheme == "" || u.Host == "" {
			a.Clear()
			return dberr.New(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad URL %q", text))
		}
		a.base, a.status, a.s = base, StatusSet, text
		return nil

	case schema.BaseString, schema.BaseText, schema.BaseAppString:
		a.base, a.status, a.s = base, StatusSet, text
		return nil

	default:
		a.Clear()
		return dberr.New(dberr.KindType, "atom.SetValue", fmt.Sprintf("unsupported base %s for setValue(base, text)", base))
	}
}

// Str returns the textual form appropriate to the carried base: dates via
// ymdHMS, IP as dotted-quad, numbers in decimal (spec §4.5 "str()").
func (a *Atom) Str() string {
	switch a.status {
	case StatusClear:
		return ""
	case StatusHoldsChain:
		return fmt.Sprintf("<%d bytes>", len(a.bin))
	}

	switch a.base {
	case schema.BaseFloat64:
		return strconv.FormatFloat(a.f64, 'g', -1, 64)
	case schema.BaseInt8, schema.BaseInt16, schema.BaseInt32, schema.BaseInt64:
		return strconv.FormatInt(a.i64, 10)
	case schema.BaseUint8, schema.BaseUint16, schema.BaseUint32, schema.BaseUint64:
		return strconv.FormatUint(a.u64, 10)
	case schema.BaseBool:
		if a.b {
			return "true"
		}
		return "false"
	case schema.BaseTriBool:
		switch a.tb {
		case 1:
			return "true"
		case -1:
			return "false"
		default:
			return "unknown"
		}
	case schema.BaseDate:
		return a.t.Format(dateLayout)
	case schema.BaseTimeOfDay:
		return a.t.Format(timeOfDayLayout)
	case schema.BaseDateTime:
		return a.t.Format(dateTimeLayout)
	case schema.BaseTimestamp:
		return strconv.FormatInt(a.t.Unix(), 10)
	default:
		return a.s
	}
}

// Bytes returns the raw chain payload for binary/text-document atoms.
func (a *Atom) Bytes() []byte {
	return a.bin
}

// Int64 returns the signed integer payload. Meaningless unless Base() is
// one of the signed integer base types.
func (a *Atom) Int64() int64 {
	return a.i64
}

// Uint64 returns the unsigned integer payload.
func (a *Atom) Uint64() uint64 {
	return a.u64
}

// Float64 returns the float payload.
func (a *Atom) Float64() float64 {
	return a.f64
}

// Bool returns the boolean payload.
func (a *Atom) Bool() bool {
	return a.b
}

// Time returns the date/time payload.
func (a *Atom) Time() time.Time {
	return a.t
}

func parseInt(text string) (int64, error) {
	text = strings.TrimSpace(text)
	neg := strings.HasPrefix(text, "-")
	unsigned := strings.TrimPrefix(text, "-")
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		n, err := strconv.ParseUint(unsigned[2:], 16, 64)
		if err != nil {
			return 0, err
		}
		if neg {
			return -int64(n), nil
		}
		return int64(n), nil
	}
	return strconv.ParseInt(text, 10, 64)
}

func parseUint(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		return strconv.ParseUint(text[2:], 16, 64)
	}
	return strconv.ParseUint(text, 10, 64)
}

func checkSignedRange(base schema.BaseType, n int64) error {
	var lo, hi int64
	switch base {
	case schema.BaseInt8:
		lo, hi = -1<<7, 1<<7-1
	case schema.BaseInt16:
		lo, hi = -1<<15, 1<<15-1
	case schema.BaseInt32:
		lo, hi = -1<<31, 1<<31-1
	default:
		return nil
	}
	if n < lo || n > hi {
		return dberr.New(dberr.KindRange, "atom.SetValue", fmt.Sprintf("%d out of range for %s", n, base))
	}
	return nil
}

func checkUnsignedRange(base schema.BaseType, n uint64) error {
	var hi uint64
	switch base {
	case schema.BaseUint8:
		hi = 1<<8 - 1
	case schema.BaseUint16:
		hi = 1<<16 - 1
	case schema.BaseUint32:
		hi = 1<<32 - 1
	default:
		return nil
	}
	if n > hi {
		return dberr.New(dberr.KindRange, "atom.SetValue", fmt.Sprintf("%d out of range for %s", n, base))
	}
	return nil
}

func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	default:
		return false, dberr.New(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad bool %q", text))
	}
}

func parseTriBool(text string) (int8, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "yes", "y", "1":
		return 1, nil
	case "false", "no", "n", "0":
		return -1, nil
	case "unknown", "":
		return 0, nil
	default:
		return 0, dberr.New(dberr.KindFormat, "atom.SetValue", fmt.Sprintf("bad tribool %q", text))
	}
}

func validDomain(text string) bool {
	if text == "" || len(text) > 253 {
		return false
	}
	labels := strings.Split(text, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 {
			return false
		}
		for i, c := range l {
			isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			isHyphen := c == '-'
			if !isAlnum && !(isHyphen && i != 0 && i != len(l)-1) {
				return false
			}
		}
	}
	return true
}
