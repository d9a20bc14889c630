package model

import (
	"encoding/json"
	"fmt"
)

// Metadata is the closed set of per-type validation contracts a field can
// carry. Exactly one variant exists per FieldType.
type Metadata interface {
	Type() FieldType
}

type ShortTextMetadata struct {
	Placeholder     string `json:"placeholder"`
	AnswerMaxLength int    `json:"answer_max_length"`
	AnswerMinLength int    `json:"answer_min_length"`
	RegexValue      string `json:"regex_value"`
}

func (ShortTextMetadata) Type() FieldType { return TypeShortText }

type LongTextMetadata struct {
	AnswerMaxLength int `json:"answer_max_length"`
	AnswerMinLength int `json:"answer_min_length"`
}

func (LongTextMetadata) Type() FieldType { return TypeLongText }

type ChoiceMetadata struct {
	MinSelectableChoices int               `json:"min_selectable_choices"`
	MaxSelectableChoices int               `json:"max_selectable_choices"`
	Choices              map[string]string `json:"choices"`
}

func (ChoiceMetadata) Type() FieldType { return TypeChoice }

type NumberMetadata struct {
	NumberMaxValue float64 `json:"number_max_value"`
	NumberMinValue float64 `json:"number_min_value"`
}

func (NumberMetadata) Type() FieldType { return TypeNumber }

// UnmarshalMetadata decodes previously normalized metadata JSON into the
// variant matching t. Used when reading fields back from the database.
func UnmarshalMetadata(t FieldType, data []byte) (Metadata, error) {
	switch t {
	case TypeShortText:
		m := ShortTextMetadata{}
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeLongText:
		m := LongTextMetadata{}
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeChoice:
		m := ChoiceMetadata{}
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeNumber:
		m := NumberMetadata{}
		err := json.Unmarshal(data, &m)
		return m, err
	}
	return nil, fmt.Errorf("unknown field type %d", int(t))
}
