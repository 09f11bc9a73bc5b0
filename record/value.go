package record

import (
	"strconv"
	"time"
)

// Type identifies the data type of a field value.
type Type int

const (
	// TypeString is a plain text value.
	TypeString Type = iota + 1

	// TypeNumber is a numeric value stored as float64.
	TypeNumber

	// TypeDate is a calendar timestamp.
	TypeDate

	// TypeID is a reference to another record's identifier.
	TypeID
)

// Value is a single field value: string, number, date, or record reference.
// The zero Value has no type and fails schema validation.
type Value struct {
	typ  Type
	str  string
	num  float64
	date time.Time
}

// String builds a string value.
func String(s string) Value { return Value{typ: TypeString, str: s} }

// Number builds a numeric value.
func Number(n float64) Value { return Value{typ: TypeNumber, num: n} }

// Date builds a date value.
func Date(t time.Time) Value { return Value{typ: TypeDate, date: t} }

// ID builds a reference value holding another record's identifier.
func ID(ref string) Value { return Value{typ: TypeID, str: ref} }

// Type returns the value's type, or 0 for the zero Value.
func (v Value) Type() Type { return v.typ }

// IsZero reports whether the value is the untyped zero Value.
func (v Value) IsZero() bool { return v.typ == 0 }

// AsString returns the string value and whether the value is a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.typ == TypeString
}

// AsNumber returns the numeric value and whether the value is a number.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.typ == TypeNumber
}

// AsDate returns the date value and whether the value is a date.
func (v Value) AsDate() (time.Time, bool) {
	return v.date, v.typ == TypeDate
}

// AsID returns the referenced identifier and whether the value is a reference.
func (v Value) AsID() (string, bool) {
	return v.str, v.typ == TypeID
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeString, TypeID:
		return v.str == other.str
	case TypeNumber:
		return v.num == other.num
	case TypeDate:
		return v.date.Equal(other.date)
	}
	return true
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.typ {
	case TypeString, TypeID:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeDate:
		return v.date.UTC().Format(time.RFC3339)
	}
	return ""
}

// Fields maps field names to values.
type Fields map[string]Value
