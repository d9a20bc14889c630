package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/model"
)

func TestShortTextMetadata(t *testing.T) {
	md, err := Metadata(model.TypeShortText, map[string]any{
		"placeholder":       "your name",
		"answer_max_length": 100.0,
		"answer_min_length": 1.0,
		"regex_value":       "[a-z ]+",
	})
	require.NoError(t, err)
	require.Equal(t, model.ShortTextMetadata{
		Placeholder:     "your name",
		AnswerMaxLength: 100,
		AnswerMinLength: 1,
		RegexValue:      "[a-z ]+",
	}, md)
}

func TestShortTextMetadataMissingKeys(t *testing.T) {
	_, err := Metadata(model.TypeShortText, map[string]any{})
	require.Error(t, err)

	errs := AsMap(err)
	require.Contains(t, errs, "metadata.placeholder")
	require.Contains(t, errs, "metadata.answer_max_length")
	require.Contains(t, errs, "metadata.answer_min_length")
	require.Contains(t, errs, "metadata.regex_value")
}

func TestShortTextMetadataInvalidRegex(t *testing.T) {
	_, err := Metadata(model.TypeShortText, map[string]any{
		"placeholder":       "x",
		"answer_max_length": 10,
		"answer_min_length": 0,
		"regex_value":       "[unclosed",
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "metadata.regex_value")
}

func TestMetadataStripsUnknownKeys(t *testing.T) {
	md, err := Metadata(model.TypeLongText, map[string]any{
		"answer_max_length": 10,
		"answer_min_length": 2,
		"placeholder":       "does not belong here",
		"number_max_value":  99,
	})
	require.NoError(t, err)
	require.Equal(t, model.LongTextMetadata{
		AnswerMaxLength: 10,
		AnswerMinLength: 2,
	}, md)
}

func TestLongTextMetadataMaxBelowMin(t *testing.T) {
	_, err := Metadata(model.TypeLongText, map[string]any{
		"answer_max_length": 2,
		"answer_min_length": 10,
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "metadata")
}

func TestLongTextMetadataMaxEqualsMin(t *testing.T) {
	md, err := Metadata(model.TypeLongText, map[string]any{
		"answer_max_length": 5,
		"answer_min_length": 5,
	})
	require.NoError(t, err)
	require.Equal(t, model.LongTextMetadata{AnswerMaxLength: 5, AnswerMinLength: 5}, md)
}

func TestMetadataRejectsFractionalInt(t *testing.T) {
	_, err := Metadata(model.TypeLongText, map[string]any{
		"answer_max_length": 10.5,
		"answer_min_length": 0,
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "metadata.answer_max_length")
}

func TestChoiceMetadata(t *testing.T) {
	md, err := Metadata(model.TypeChoice, map[string]any{
		"min_selectable_choices": 1,
		"max_selectable_choices": 2,
		"choices":                map[string]any{"1": "red", "2": "green", "3": "blue"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ChoiceMetadata{
		MinSelectableChoices: 1,
		MaxSelectableChoices: 2,
		Choices:              map[string]string{"1": "red", "2": "green", "3": "blue"},
	}, md)
}

func TestChoiceMetadataTooFewChoices(t *testing.T) {
	_, err := Metadata(model.TypeChoice, map[string]any{
		"min_selectable_choices": 1,
		"max_selectable_choices": 3,
		"choices":                map[string]any{"1": "only one"},
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "metadata.choices")
}

func TestNumberMetadata(t *testing.T) {
	md, err := Metadata(model.TypeNumber, map[string]any{
		"number_max_value": 10.5,
		"number_min_value": -1,
	})
	require.NoError(t, err)
	require.Equal(t, model.NumberMetadata{NumberMaxValue: 10.5, NumberMinValue: -1}, md)
}

func TestNumberMetadataMaxBelowMin(t *testing.T) {
	_, err := Metadata(model.TypeNumber, map[string]any{
		"number_max_value": 1,
		"number_min_value": 5,
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "metadata")
}

func TestMetadataUnknownType(t *testing.T) {
	_, err := Metadata(model.FieldType(42), map[string]any{})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "type")
}
