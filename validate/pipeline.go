package validate

import (
	"math/rand"
	"time"

	"github.com/mbolis/formpipe/model"
)

const slugLength = 20

const slugLetters = "abcdefghijklmnopqrstuvwxyz"

// RandomSlug returns a random lowercase slug for shareable pipeline links.
// Callers retry on the rare collision; the space (26^20) makes a central
// sequence unnecessary.
func RandomSlug() string {
	b := make([]byte, slugLength)
	for i := range b {
		b[i] = slugLetters[rand.Intn(len(slugLetters))]
	}
	return string(b)
}

// AuthorizationError carries 403 semantics, as opposed to the 400 semantics
// of plain validation failures.
type AuthorizationError struct {
	Path    string
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Path + ": " + e.Message
}

// Pipeline checks the invariants of a pipeline definition on create/update.
func Pipeline(p model.Pipeline) error {
	if p.IsPrivate && p.Password == "" {
		return fieldErrorf("password", "this field is required when the pipeline is private")
	}
	if p.QuestionsRespondingDuration < 1 {
		return fieldErrorf("questions_responding_duration", "must be a positive number of minutes")
	}
	if p.StartDatetime != nil && p.StopDatetime != nil && p.StopDatetime.Before(*p.StartDatetime) {
		return fieldErrorf("stop_datetime", "stop_datetime can not be before start_datetime")
	}
	return nil
}

// PipelineAccess checks privacy before exposing a pipeline to a caller.
// Password comparison is an exact string match.
func PipelineAccess(p model.Pipeline, password string) error {
	if !p.IsPrivate {
		return nil
	}
	if password == "" {
		return &AuthorizationError{Path: "password", Message: "the pipeline is protected, this field is required"}
	}
	if password != p.Password {
		return &AuthorizationError{Path: "password", Message: "the password is incorrect"}
	}
	return nil
}

// PipelineWindow rejects access outside the pipeline's scheduling window.
// A nil bound means unbounded on that side.
func PipelineWindow(p model.Pipeline, now time.Time) error {
	if p.StopDatetime != nil && now.After(*p.StopDatetime) {
		return fieldErrorf("pipeline", "this pipeline has expired")
	}
	if p.StartDatetime != nil && now.Before(*p.StartDatetime) {
		return fieldErrorf("pipeline", "the pipeline has not started yet, it will start at %s",
			p.StartDatetime.Format(time.RFC3339))
	}
	return nil
}
