package validate

import (
	"fmt"
	"math"
	"regexp"

	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/formpipe/model"
)

// Metadata checks a raw metadata object against the contract for the given
// field type and returns the normalized typed variant. Keys outside the
// type's contract are silently dropped. On failure the returned error is a
// multierror of FieldErrors keyed by the offending metadata key.
func Metadata(t model.FieldType, raw map[string]any) (model.Metadata, error) {
	if !t.Valid() {
		return nil, fieldErrorf("type", "type must be an integer from 1 to %d", int(model.TypeNumber))
	}

	switch t {
	case model.TypeLongText:
		return longTextMetadata(raw)
	case model.TypeChoice:
		return choiceMetadata(raw)
	case model.TypeNumber:
		return numberMetadata(raw)
	}
	return shortTextMetadata(raw)
}

func shortTextMetadata(raw map[string]any) (model.Metadata, error) {
	var errs *multierror.Error

	placeholder, ok := strKey(raw, "placeholder")
	if !ok || placeholder == "" {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.placeholder", "metadata must contain a [str] placeholder"))
	}

	max, okMax := intKey(raw, "answer_max_length")
	if !okMax || max < 1 {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.answer_max_length", "metadata must contain a [int] answer_max_length more than 0"))
	}
	min, okMin := intKey(raw, "answer_min_length")
	if !okMin || min < 0 {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.answer_min_length", "metadata must contain a non negative [int] answer_min_length"))
	}
	if okMax && okMin && max < min {
		errs = multierror.Append(errs,
			fieldErrorf("metadata", "value of answer_max_length can not be less than answer_min_length"))
	}

	regex, ok := strKey(raw, "regex_value")
	if !ok || regex == "" {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.regex_value", "metadata must contain a [str] regex validation"))
	} else if _, err := regexp.Compile(regex); err != nil {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.regex_value", "regex_value is not a valid regular expression"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return model.ShortTextMetadata{
		Placeholder:     placeholder,
		AnswerMaxLength: max,
		AnswerMinLength: min,
		RegexValue:      regex,
	}, nil
}

func longTextMetadata(raw map[string]any) (model.Metadata, error) {
	var errs *multierror.Error

	max, okMax := intKey(raw, "answer_max_length")
	if !okMax || max < 1 {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.answer_max_length", "metadata must contain a [int] answer_max_length more than 0"))
	}
	min, okMin := intKey(raw, "answer_min_length")
	if !okMin || min < 0 {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.answer_min_length", "metadata must contain a non negative [int] answer_min_length"))
	}
	if okMax && okMin && max < min {
		errs = multierror.Append(errs,
			fieldErrorf("metadata", "value of answer_max_length can not be less than answer_min_length"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return model.LongTextMetadata{
		AnswerMaxLength: max,
		AnswerMinLength: min,
	}, nil
}

func choiceMetadata(raw map[string]any) (model.Metadata, error) {
	var errs *multierror.Error

	min, okMin := intKey(raw, "min_selectable_choices")
	if !okMin {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.min_selectable_choices", "metadata must contain a [int] value as min_selectable_choices"))
	}
	max, okMax := intKey(raw, "max_selectable_choices")
	if !okMax {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.max_selectable_choices", "metadata must contain a [int] value as max_selectable_choices"))
	}
	if okMin && okMax && max < min {
		errs = multierror.Append(errs,
			fieldErrorf("metadata", "value of max_selectable_choices can not be less than min_selectable_choices"))
	}

	choices, ok := choicesKey(raw, "choices")
	if !ok || len(choices) == 0 {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.choices", `choices must be defined in metadata as "choices":{"1":"f1"}`))
	} else if okMax && len(choices) < max {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.choices", "number of choices must be greater than or equal max_selectable_choices"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return model.ChoiceMetadata{
		MinSelectableChoices: min,
		MaxSelectableChoices: max,
		Choices:              choices,
	}, nil
}

func numberMetadata(raw map[string]any) (model.Metadata, error) {
	var errs *multierror.Error

	max, okMax := numKey(raw, "number_max_value")
	if !okMax {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.number_max_value", "metadata must contain a valid [int, float] number_max_value"))
	}
	min, okMin := numKey(raw, "number_min_value")
	if !okMin {
		errs = multierror.Append(errs,
			fieldErrorf("metadata.number_min_value", "metadata must contain a valid [int, float] number_min_value"))
	}
	if okMax && okMin && max < min {
		errs = multierror.Append(errs,
			fieldErrorf("metadata", "value of number_max_value can not be less than number_min_value"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return model.NumberMetadata{
		NumberMaxValue: max,
		NumberMinValue: min,
	}, nil
}

// JSON decoding yields float64 for every number, so integer keys must be
// whole-valued floats. Plain ints are accepted for direct construction.
func intKey(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case int:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func numKey(raw map[string]any, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func strKey(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key].(string)
	return v, ok
}

func choicesKey(raw map[string]any, key string) (map[string]string, bool) {
	switch v := raw[key].(type) {
	case map[string]string:
		return v, true
	case map[string]any:
		choices := make(map[string]string, len(v))
		for id, label := range v {
			s, ok := label.(string)
			if !ok {
				s = fmt.Sprint(label)
			}
			choices[id] = s
		}
		return choices, true
	}
	return nil, false
}
