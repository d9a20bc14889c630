package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mbolis/formpipe/model"
)

const pipelineColumns = `
	id, owner_id, title, slug, description, metadata,
	questions_responding_duration, start_datetime, stop_datetime,
	hide_previous_button, hide_next_button, is_private, password,
	number_of_views`

func getPipelineById(ctx context.Context, db *sql.DB, id int) (model.Pipeline, error) {
	row := db.QueryRowContext(ctx, `
		SELECT`+pipelineColumns+`
		FROM pipeline
		WHERE id = ?`,
		id,
	)
	return scanPipeline(row)
}

func getPipelineBySlug(ctx context.Context, db *sql.DB, slug string) (model.Pipeline, error) {
	row := db.QueryRowContext(ctx, `
		SELECT`+pipelineColumns+`
		FROM pipeline
		WHERE slug = ?`,
		slug,
	)
	return scanPipeline(row)
}

func scanPipeline(row *sql.Row) (model.Pipeline, error) {
	p := model.Pipeline{}
	var metadata string
	var start, stop sql.NullTime
	var password sql.NullString

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Slug, &p.Description, &metadata,
		&p.QuestionsRespondingDuration, &start, &stop,
		&p.HidePreviousButton, &p.HideNextButton, &p.IsPrivate, &password,
		&p.NumberOfViews,
	)
	if err != nil {
		return p, err
	}

	if start.Valid {
		p.StartDatetime = &start.Time
	}
	if stop.Valid {
		p.StopDatetime = &stop.Time
	}
	p.Password = password.String

	err = json.Unmarshal([]byte(metadata), &p.Metadata)
	return p, err
}

func getFormFields(ctx context.Context, db *sql.DB, formID int) ([]model.Field, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT f.id, f.title, f.slug, f.description, f.type, f.answer_required, f.error_message, f.metadata
		FROM field f
		INNER JOIN form_field ff ON (f.id = ff.field_id)
		WHERE ff.form_id = ?`,
		formID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []model.Field
	for rows.Next() {
		f := model.Field{}
		var metadata string
		err = rows.Scan(&f.ID, &f.Title, &f.Slug, &f.Description, &f.Type, &f.AnswerRequired, &f.ErrorMessage, &metadata)
		if err != nil {
			return nil, err
		}
		f.Metadata, err = model.UnmarshalMetadata(f.Type, []byte(metadata))
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func getResponseById(ctx context.Context, db *sql.DB, id int) (model.Response, error) {
	resp := model.Response{}
	var owner sql.NullInt64
	var session sql.NullString
	var data string

	err := db.QueryRowContext(ctx, `
		SELECT id, pipeline_id, form_id, pipeline_submission_id, owner_id, session_key, data, created_at, updated_at
		FROM response
		WHERE id = ?`,
		id,
	).Scan(&resp.ID, &resp.PipelineID, &resp.FormID, &resp.SubmissionID, &owner, &session, &data, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return resp, err
	}

	resp.Identity = model.Identity{UserID: int(owner.Int64), SessionKey: session.String}
	err = json.Unmarshal([]byte(data), &resp.Data)
	return resp, err
}

// countOwnedRows counts how many of the given ids exist in table for owner.
// Used to verify a referenced id list before linking it.
func countOwnedRows(ctx context.Context, db *sql.DB, table string, ids []int, ownerID int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, ownerID)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM `+table+`
		WHERE id IN (`+placeholders+`)
			AND owner_id = ?`,
		args...,
	).Scan(&n)
	return n, err
}

func identityArgs(id model.Identity) (owner, session any) {
	if id.IsAuthenticated() {
		owner = id.UserID
	}
	if id.SessionKey != "" {
		session = id.SessionKey
	}
	return
}
