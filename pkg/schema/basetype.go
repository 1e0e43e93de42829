/*
Package schema implements the data model described in spec §3/§9: a closed
enumeration of base types, the Class/Member/Enum schema objects that
describe legal record shapes, and application-defined regex types.

Per spec §9 "Dynamic dispatch / inheritance", types are modeled as a sum
(tagged variant) rather than a dispatch hierarchy: DataType carries a
BaseType tag plus whichever variant-specific fields (Enum, regex, Class)
that tag implies.
*/
package schema

// BaseType is the closed enumeration of primitive categories from spec §3.
type BaseType int

const (
	BaseUnknown BaseType = iota

	BaseFloat64

	BaseInt8
	BaseInt16
	BaseInt32
	BaseInt64

	BaseUint8
	BaseUint16
	BaseUint32
	BaseUint64

	BaseBool
	BaseTriBool

	BaseDate     // day-count date
	BaseTimeOfDay // seconds-of-day time
	BaseDateTime // wall-clock with seconds
	BaseTimestamp // seconds-epoch

	BaseIPAddr

	BaseDomain
	BaseEmail
	BaseURL
	BaseString
	BaseText // indexable text

	BaseBinary  // opaque binary blob
	BaseTextDoc // text-document blob with extractable words

	BaseAppString // application-defined, regex-validated
	BaseEnumRef
	BaseClassRef
)

// String returns the canonical name used in ADP XML export (spec §6).
func (b BaseType) String() string {
	switch b {
	case BaseFloat64:
		return "float64"
	case BaseInt8:
		return "int8"
	case BaseInt16:
		return "int16"
	case BaseInt32:
		return "int32"
	case BaseInt64:
		return "int64"
	case BaseUint8:
		return "uint8"
	case BaseUint16:
		return "uint16"
	case BaseUint32:
		return "uint32"
	case BaseUint64:
		return "uint64"
	case BaseBool:
		return "bool"
	case BaseTriBool:
		return "tribool"
	case BaseDate:
		return "date"
	case BaseTimeOfDay:
		return "timeofday"
	case BaseDateTime:
		return "datetime"
	case BaseTimestamp:
		return "timestamp"
	case BaseIPAddr:
		return "ipaddr"
	case BaseDomain:
		return "domain"
	case BaseEmail:
		return "email"
	case BaseURL:
		return "url"
	case BaseString:
		return "string"
	case BaseText:
		return "text"
	case BaseBinary:
		return "binary"
	case BaseTextDoc:
		return "textdoc"
	case BaseAppString:
		return "appstring"
	case BaseEnumRef:
		return "enumref"
	case BaseClassRef:
		return "classref"
	default:
		return "unknown"
	}
}

// Is64Bit reports whether values of this base type are carried in the
// Object Container's large-value side array (spec §3/§4.6) rather than
// inline in the ROMID map's 32-bit code.
func (b BaseType) Is64Bit() bool {
	switch b {
	case BaseFloat64, BaseInt64, BaseUint64, BaseDateTime, BaseTimestamp:
		return true
	default:
		return false
	}
}

// IsStringLike reports whether values of this base type are carried in the
// Object Container's owned-string side array.
func (b BaseType) IsStringLike() bool {
	switch b {
	case BaseDomain, BaseEmail, BaseURL, BaseString, BaseText, BaseAppString:
		return true
	default:
		return false
	}
}

// IsBlob reports whether this base type stores only a 32-bit blob-ID in
// its object repository (spec §4.10).
func (b BaseType) IsBlob() bool {
	return b == BaseBinary || b == BaseTextDoc
}

// IsNumeric reports whether this base type is an integer or float.
func (b BaseType) IsNumeric() bool {
	switch b {
	case BaseFloat64, BaseInt8, BaseInt16, BaseInt32, BaseInt64,
		BaseUint8, BaseUint16, BaseUint32, BaseUint64:
		return true
	default:
		return false
	}
}
