package report

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Window maps a period query parameter to its lookback duration.
// An empty period defaults to monthly.
func Window(period string) (time.Duration, error) {
	switch period {
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	case "monthly", "":
		return 30 * 24 * time.Hour, nil
	}
	return 0, errors.New("period should be one of the following: [monthly, weekly, daily]")
}

// SubmissionReport is one pipeline submission expanded into its per-form
// response payloads.
type SubmissionReport struct {
	ID             int                       `json:"id"`
	ResponsedForms []int                     `json:"responsed_forms"`
	IsCompleted    bool                      `json:"is_completed"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	Responses      map[string]map[string]any `json:"responses"`
}

// Periodic lists the pipeline's submissions updated since the given instant.
func Periodic(ctx context.Context, db Querier, pipelineID int, since time.Time) ([]SubmissionReport, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, responsed_forms, is_completed, created_at, updated_at
		FROM pipeline_submission
		WHERE pipeline_id = ?
			AND updated_at >= ?`,
		pipelineID, since,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "report.periodic.get_submissions")
	}
	defer rows.Close()

	reports := []SubmissionReport{}
	for rows.Next() {
		sub := SubmissionReport{}
		var rawForms string
		err = rows.Scan(&sub.ID, &rawForms, &sub.IsCompleted, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.periodic.scan")
		}
		err = json.Unmarshal([]byte(rawForms), &sub.ResponsedForms)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.periodic.parse_responsed_forms")
		}
		reports = append(reports, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "report.periodic")
	}

	for i := range reports {
		reports[i].Responses, err = submissionResponses(ctx, db, reports[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func submissionResponses(ctx context.Context, db Querier, submissionID int) (map[string]map[string]any, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT form_id, data
		FROM response
		WHERE pipeline_submission_id = ?`,
		submissionID,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "report.periodic.get_responses")
	}
	defer rows.Close()

	responses := map[string]map[string]any{}
	for rows.Next() {
		var formID int
		var raw string
		err = rows.Scan(&formID, &raw)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.periodic.get_responses.scan")
		}
		data := map[string]any{}
		err = json.Unmarshal([]byte(raw), &data)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.periodic.get_responses.parse_data")
		}
		responses[strconv.Itoa(formID)] = data
	}
	return responses, rows.Err()
}
