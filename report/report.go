package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/validate"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Report aggregates per-field statistics over a pipeline. Responses is keyed
// by form id, so same-titled forms stay distinct.
type Report struct {
	TotalResponses    int                   `json:"total_responses"`
	CompleteResponses int                   `json:"complete_responses"`
	NumberOfVisits    int                   `json:"number_of_visit"`
	Responses         map[string]FormReport `json:"responses"`
}

// FormReport maps field slug to its statistics: NumberStats for numeric
// fields, ChoicePercentages for choice fields.
type FormReport map[string]any

// NumberStats values are nil when no completed submission answered the field.
type NumberStats struct {
	Average      *float64 `json:"average"`
	MaximumValue *float64 `json:"maximum_value"`
	MinimumValue *float64 `json:"minimum_value"`
}

// ChoicePercentages maps each choice label to the share of completed
// submissions that selected it, as a percent string.
type ChoicePercentages map[string]string

// Build aggregates statistics over the completed submissions of a pipeline.
func Build(ctx context.Context, db Querier, pipeline model.Pipeline) (Report, error) {
	rep := Report{
		NumberOfVisits: pipeline.NumberOfViews,
		Responses:      map[string]FormReport{},
	}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_completed), 0)
		FROM pipeline_submission
		WHERE pipeline_id = ?`,
		pipeline.ID,
	).Scan(&rep.TotalResponses, &rep.CompleteResponses)
	if err != nil {
		return rep, pkgerrors.Wrap(err, "report.count_submissions")
	}

	for _, formID := range pipeline.Metadata.Order {
		fields, err := formFields(ctx, db, formID)
		if err != nil {
			return rep, err
		}

		answers, err := completedAnswers(ctx, db, pipeline.ID, formID)
		if err != nil {
			return rep, err
		}

		formRep := FormReport{}
		for _, field := range fields {
			switch md := field.Metadata.(type) {
			case model.NumberMetadata:
				formRep[field.Slug] = numberStats(field.ID, answers)
			case model.ChoiceMetadata:
				formRep[field.Slug] = choicePercentages(field.ID, md, answers, rep.CompleteResponses)
			}
		}
		rep.Responses[strconv.Itoa(formID)] = formRep
	}

	return rep, nil
}

func numberStats(fieldID int, answers []map[string]any) NumberStats {
	stats := NumberStats{}
	key := strconv.Itoa(fieldID)

	var sum float64
	var count int
	for _, data := range answers {
		value, ok := data[key].(float64)
		if !ok {
			continue
		}
		sum += value
		count++
		if stats.MaximumValue == nil || value > *stats.MaximumValue {
			v := value
			stats.MaximumValue = &v
		}
		if stats.MinimumValue == nil || value < *stats.MinimumValue {
			v := value
			stats.MinimumValue = &v
		}
	}
	if count > 0 {
		avg := sum / float64(count)
		stats.Average = &avg
	}
	return stats
}

func choicePercentages(fieldID int, md model.ChoiceMetadata, answers []map[string]any, complete int) ChoicePercentages {
	key := strconv.Itoa(fieldID)

	counts := map[string]int{}
	for _, data := range answers {
		selection, ok := data[key].([]any)
		if !ok {
			continue
		}
		for _, choice := range selection {
			counts[validate.ChoiceKey(choice)]++
		}
	}

	perc := ChoicePercentages{}
	for id, label := range md.Choices {
		// explicit zero guard: an empty pipeline reports 0%, never divides
		if complete == 0 {
			perc[label] = "0%"
			continue
		}
		perc[label] = fmt.Sprintf("%g%%", float64(counts[id]*100)/float64(complete))
	}
	return perc
}

func formFields(ctx context.Context, db Querier, formID int) ([]model.Field, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT f.id, f.slug, f.type, f.metadata
		FROM field f
		INNER JOIN form_field ff ON (f.id = ff.field_id)
		WHERE ff.form_id = ?`,
		formID,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "report.get_fields")
	}
	defer rows.Close()

	var fields []model.Field
	for rows.Next() {
		f := model.Field{}
		var metadata string
		err = rows.Scan(&f.ID, &f.Slug, &f.Type, &metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.get_fields.scan")
		}
		f.Metadata, err = model.UnmarshalMetadata(f.Type, []byte(metadata))
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.get_fields.parse_metadata")
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func completedAnswers(ctx context.Context, db Querier, pipelineID, formID int) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.data
		FROM response r
		INNER JOIN pipeline_submission ps ON (r.pipeline_submission_id = ps.id)
		WHERE r.pipeline_id = ?
			AND r.form_id = ?
			AND ps.is_completed`,
		pipelineID, formID,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "report.get_answers")
	}
	defer rows.Close()

	var answers []map[string]any
	for rows.Next() {
		var raw string
		err = rows.Scan(&raw)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.get_answers.scan")
		}
		data := map[string]any{}
		err = json.Unmarshal([]byte(raw), &data)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "report.get_answers.parse_data")
		}
		answers = append(answers, data)
	}
	return answers, rows.Err()
}
