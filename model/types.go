package model

import "fmt"

// FieldType discriminates the validation contract a field's metadata and
// answers must satisfy. The numeric values are part of the API.
type FieldType int

const (
	TypeShortText FieldType = iota + 1
	TypeLongText
	TypeChoice
	TypeNumber
)

func (t FieldType) Valid() bool {
	return t >= TypeShortText && t <= TypeNumber
}

func (t FieldType) String() string {
	switch t {
	case TypeShortText:
		return "short_text"
	case TypeLongText:
		return "long_text"
	case TypeChoice:
		return "choice"
	case TypeNumber:
		return "number"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}
