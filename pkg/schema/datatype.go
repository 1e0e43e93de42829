package schema

import "regexp"

// DataType names one concrete type usable by a Member: a built-in base
// type, an application-defined enum, a regex-validated application
// string, or a reference to another Class. Every concrete type carries a
// unique name and its base-type tag (spec §3).
type DataType struct {
	Name string
	Base BaseType

	// Enum is set iff Base == BaseEnumRef.
	Enum *Enum

	// RegexSrc/Regex are set iff Base == BaseAppString.
	RegexSrc string
	Regex    *regexp.Regexp

	// Class is set iff Base == BaseClassRef.
	Class *Class
}

// NewBuiltin returns a DataType for one of the built-in base types.
func NewBuiltin(name string, base BaseType) *DataType {
	return &DataType{Name: name, Base: base}
}

// NewEnumType returns a DataType wrapping an Enum.
func NewEnumType(name string, e *Enum) *DataType {
	return &DataType{Name: name, Base: BaseEnumRef, Enum: e}
}

// NewRegexType compiles pattern and returns an application-defined
// regex-validated string type (spec §3/§4.5).
func NewRegexType(name, pattern string) (*DataType, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &DataType{Name: name, Base: BaseAppString, RegexSrc: pattern, Regex: re}, nil
}

// NewClassRefType returns a DataType referencing a Class, used by members
// that embed a sub-class record (spec §4.6 "Nested sub-class records").
func NewClassRefType(name string, c *Class) *DataType {
	return &DataType{Name: name, Base: BaseClassRef, Class: c}
}

// Validate reports whether text is a legal value for this type, only
// meaningful for BaseAppString (the other base types are validated by
// pkg/atom's per-base-type parse rules).
func (d *DataType) Validate(text string) bool {
	if d.Base != BaseAppString || d.Regex == nil {
		return true
	}
	return d.Regex.MatchString(text)
}

// BuiltinTypes returns the minimal set of built-in types pre-registered by
// pkg/adp.Registry.InitStandard, keyed by name.
func BuiltinTypes() map[string]*DataType {
	m := make(map[string]*DataType)
	add := func(name string, base BaseType) {
		m[name] = NewBuiltin(name, base)
	}
	add("float64", BaseFloat64)
	add("int8", BaseInt8)
	add("int16", BaseInt16)
	add("int32", BaseInt32)
	add("int64", BaseInt64)
	add("uint8", BaseUint8)
	add("uint16", BaseUint16)
	add("uint32", BaseUint32)
	add("uint64", BaseUint64)
	add("bool", BaseBool)
	add("tribool", BaseTriBool)
	add("date", BaseDate)
	add("timeofday", BaseTimeOfDay)
	add("datetime", BaseDateTime)
	add("timestamp", BaseTimestamp)
	add("ipaddr", BaseIPAddr)
	add("domain", BaseDomain)
	add("email", BaseEmail)
	add("url", BaseURL)
	add("string", BaseString)
	add("text", BaseText)
	add("binary", BaseBinary)
	add("textdoc", BaseTextDoc)
	return m
}
