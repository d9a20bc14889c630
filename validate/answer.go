package validate

import (
	"math"
	"regexp"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/formpipe/model"
)

// Answer checks a decoded JSON answer value against a single field's
// contract. The error path is the field slug.
func Answer(field model.Field, value any) error {
	path := field.Slug

	switch md := field.Metadata.(type) {
	case model.ShortTextMetadata:
		s, ok := value.(string)
		if !ok {
			return fieldErrorf(path, "the answer should be a string")
		}
		if err := checkLength(path, s, md.AnswerMinLength, md.AnswerMaxLength); err != nil {
			return err
		}
		re, err := regexp.Compile(`\A(?:` + md.RegexValue + `)\z`)
		if err != nil {
			return fieldErrorf(path, "the field regex is invalid")
		}
		if !re.MatchString(s) {
			return &FieldError{Path: path, Message: field.ErrorMessage}
		}

	case model.LongTextMetadata:
		s, ok := value.(string)
		if !ok {
			return fieldErrorf(path, "the answer should be a string")
		}
		if err := checkLength(path, s, md.AnswerMinLength, md.AnswerMaxLength); err != nil {
			return err
		}

	case model.ChoiceMetadata:
		list, ok := value.([]any)
		if !ok {
			return fieldErrorf(path, "the answer should be a list")
		}
		if len(list) < md.MinSelectableChoices || len(list) > md.MaxSelectableChoices {
			return fieldErrorf(path, "the number of answers should be between %d and %d",
				md.MinSelectableChoices, md.MaxSelectableChoices)
		}
		for _, e := range list {
			if _, ok := md.Choices[ChoiceKey(e)]; !ok {
				return fieldErrorf(path, "%v is not a valid choice", e)
			}
		}

	case model.NumberMetadata:
		// Booleans and numeric strings are not numbers.
		n, ok := numberValue(value)
		if !ok {
			return fieldErrorf(path, "the answer should be a number (float or int)")
		}
		if n > md.NumberMaxValue {
			return fieldErrorf(path, "the answer should be less than or equal %v", md.NumberMaxValue)
		}
		if n < md.NumberMinValue {
			return fieldErrorf(path, "the answer should be greater than or equal %v", md.NumberMinValue)
		}
	}

	return nil
}

// Answers validates a form's full answer payload: required fields must be
// present, every present answer must satisfy its field's contract, and keys
// not matching any field id are pruned from the returned payload.
func Answers(fields []model.Field, data map[string]any) (map[string]any, error) {
	var errs *multierror.Error

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		key := strconv.Itoa(f.ID)
		known[key] = true

		value, ok := data[key]
		if !ok || value == nil {
			if f.AnswerRequired {
				errs = multierror.Append(errs, fieldErrorf(f.Slug, "this field is required"))
			}
			continue
		}
		if err := Answer(f, value); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	pruned := make(map[string]any, len(data))
	for key, value := range data {
		if known[key] {
			pruned[key] = value
		}
	}
	return pruned, nil
}

// ChoiceKey maps a submitted choice element to its key in the choices map.
// Whole-valued numbers compare equal to their decimal string form.
func ChoiceKey(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.Itoa(int(v))
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ""
}

func numberValue(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func checkLength(path, s string, min, max int) error {
	length := len([]rune(s))
	if length > max {
		return fieldErrorf(path, "the answer should be less than %d chars", max)
	}
	if length < min {
		return fieldErrorf(path, "the answer should be more than %d chars", min)
	}
	return nil
}
