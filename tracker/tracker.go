package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/mbolis/formpipe/model"
)

// Tracker drives the per-(pipeline, identity) submission state machine:
// NotStarted -> InProgress -> Completed, plus a derived Expired state that is
// evaluated lazily at the next write attempt, never by a background sweep.
//
// All mutating methods must run inside the same transaction as the response
// row write, so the duplicate check and the responsed_forms append stay
// atomic. The partial unique indexes on response and pipeline_submission back
// the same invariants against concurrent transactions.
type Tracker struct {
	Now func() time.Time
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	// ErrExpired marks a submission whose responding duration ran out.
	// Terminal: the identity can not start over on the same pipeline.
	ErrExpired = errors.New("response time has expired")

	ErrNotOwner = errors.New("you can't change this response because you are not the owner")

	ErrFrozen = errors.New("this pipeline is set as unchangeable and responses can not be updated")
)

// ConflictError reports a duplicate answer, pointing at the existing response
// so the client can switch to the update path.
type ConflictError struct {
	ResponseID int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("this form was already answered, existing response id %d", e.ResponseID)
}

// SequenceError reports an out-of-order answer on a sequential pipeline.
type SequenceError struct {
	PreviousFormID int
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("you should first answer the previous form with id %d", e.PreviousFormID)
}

// Record registers that identity answered formID within pipeline, creating or
// advancing the identity's PipelineSubmission. Returns the updated submission
// with IsCompleted flipped once every form in the pipeline order is answered.
func (t Tracker) Record(ctx context.Context, tx Querier, pipeline model.Pipeline, formID int, id model.Identity) (model.PipelineSubmission, error) {
	sub := model.PipelineSubmission{PipelineID: pipeline.ID, Identity: id}
	clause, arg := identityClause(id)

	var existingID int
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM response
		WHERE pipeline_id = ?
			AND form_id = ?
			AND `+clause,
		pipeline.ID, formID, arg,
	).Scan(&existingID)
	switch {
	case err == nil:
		return sub, &ConflictError{ResponseID: existingID}
	case !errors.Is(err, sql.ErrNoRows):
		return sub, pkgerrors.Wrap(err, "tracker.check_duplicate")
	}

	if pipeline.HideNextButton {
		err = checkSequence(ctx, tx, pipeline, formID, clause, arg)
		if err != nil {
			return sub, err
		}
	}

	now := t.Now()

	var rawForms string
	err = tx.QueryRowContext(ctx, `
		SELECT id, responsed_forms, is_completed, created_at
		FROM pipeline_submission
		WHERE pipeline_id = ?
			AND `+clause,
		pipeline.ID, arg,
	).Scan(&sub.ID, &rawForms, &sub.IsCompleted, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// NotStarted -> InProgress
		sub.ResponsedForms = []int{formID}
		sub.IsCompleted = len(sub.ResponsedForms) == len(pipeline.Metadata.Order)
		sub.CreatedAt, sub.UpdatedAt = now, now

		forms, _ := json.Marshal(sub.ResponsedForms)
		err = tx.QueryRowContext(ctx, `
			INSERT INTO pipeline_submission
				(pipeline_id, owner_id, session_key, responsed_forms, is_completed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			pipeline.ID, ownerArg(id), sessionArg(id), string(forms), sub.IsCompleted, now, now,
		).Scan(&sub.ID)
		return sub, pkgerrors.Wrap(err, "tracker.insert_submission")
	}
	if err != nil {
		return sub, pkgerrors.Wrap(err, "tracker.get_submission")
	}

	if !sub.IsCompleted {
		elapsed := now.Sub(sub.CreatedAt).Minutes()
		if elapsed > float64(pipeline.QuestionsRespondingDuration) {
			return sub, ErrExpired
		}
	}

	err = json.Unmarshal([]byte(rawForms), &sub.ResponsedForms)
	if err != nil {
		return sub, pkgerrors.Wrap(err, "tracker.parse_responsed_forms")
	}

	sub.ResponsedForms = append(sub.ResponsedForms, formID)
	sub.IsCompleted = len(sub.ResponsedForms) == len(pipeline.Metadata.Order)
	sub.UpdatedAt = now

	forms, _ := json.Marshal(sub.ResponsedForms)
	_, err = tx.ExecContext(ctx, `
		UPDATE pipeline_submission
		SET
			responsed_forms = ?,
			is_completed = ?,
			updated_at = ?
		WHERE id = ?`,
		string(forms), sub.IsCompleted, now, sub.ID,
	)
	return sub, pkgerrors.Wrap(err, "tracker.update_submission")
}

func checkSequence(ctx context.Context, tx Querier, pipeline model.Pipeline, formID int, clause string, arg any) error {
	order := pipeline.Metadata.Order
	index := -1
	for i, id := range order {
		if id == formID {
			index = i
			break
		}
	}
	// index 0 has no predecessor requirement; membership is checked upstream
	if index <= 0 {
		return nil
	}

	previous := order[index-1]
	var one int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM response
		WHERE pipeline_id = ?
			AND form_id = ?
			AND `+clause,
		pipeline.ID, previous, arg,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &SequenceError{PreviousFormID: previous}
	}
	return pkgerrors.Wrap(err, "tracker.check_sequence")
}

// AuthorizeUpdate guards the response update path: the requester identity
// must match the response identity, and a frozen pipeline
// (hide_previous_button) rejects edits regardless of a correct identity.
func AuthorizeUpdate(resp model.Response, pipeline model.Pipeline, id model.Identity) error {
	owner := resp.Identity

	var match bool
	if owner.IsAuthenticated() {
		match = id.UserID == owner.UserID
	} else {
		match = id.SessionKey != "" && id.SessionKey == owner.SessionKey
	}
	if !match {
		return ErrNotOwner
	}

	if pipeline.HidePreviousButton {
		return ErrFrozen
	}
	return nil
}

// NextForms returns the form ids an identity may currently see: the full
// order for free-progression pipelines; for sequential pipelines, everything
// already answered plus the next unanswered one.
func NextForms(ctx context.Context, q Querier, pipeline model.Pipeline, id model.Identity) ([]int, error) {
	order := pipeline.Metadata.Order
	if !pipeline.HideNextButton || len(order) == 0 {
		return order, nil
	}

	clause, arg := identityClause(id)
	var rawForms string
	err := q.QueryRowContext(ctx, `
		SELECT responsed_forms FROM pipeline_submission
		WHERE pipeline_id = ?
			AND `+clause,
		pipeline.ID, arg,
	).Scan(&rawForms)
	if errors.Is(err, sql.ErrNoRows) {
		return order[:1], nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "tracker.next_forms")
	}

	var forms []int
	err = json.Unmarshal([]byte(rawForms), &forms)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "tracker.next_forms.parse")
	}
	if len(forms) == 0 {
		return order[:1], nil
	}

	last := forms[len(forms)-1]
	for i, formID := range order {
		if formID == last && i+1 < len(order) {
			forms = append(forms, order[i+1])
			break
		}
	}
	return forms, nil
}

func identityClause(id model.Identity) (string, any) {
	if id.IsAuthenticated() {
		return "owner_id = ?", id.UserID
	}
	return "session_key = ?", id.SessionKey
}

func ownerArg(id model.Identity) any {
	if id.IsAuthenticated() {
		return id.UserID
	}
	return nil
}

func sessionArg(id model.Identity) any {
	if id.SessionKey != "" {
		return id.SessionKey
	}
	return nil
}
