package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/events"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/routes/middlewares"
	"github.com/mbolis/formpipe/tracker"
	"github.com/mbolis/formpipe/validate"
)

type responsePayload struct {
	Pipeline int            `json:"pipeline"`
	Form     int            `json:"form"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

// CreateResponse registers one identity's answers to one form of a pipeline.
// The submission bookkeeping and the response row are written in the same
// transaction, so a duplicate or an expired submission can not leak a
// half-recorded answer.
func CreateResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := responsePayload{}
		err := render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		pipeline, err := getPipelineById(r.Context(), app.DB, payload.Pipeline)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "create_response", payload.Pipeline)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.get_pipeline", err)
			return
		}

		err = validate.PipelineWindow(pipeline, app.Now())
		if err != nil {
			writeError(w, r, "response.create", err)
			return
		}
		err = validate.PipelineAccess(pipeline, payload.Password)
		if err != nil {
			writeError(w, r, "response.create", err)
			return
		}
		if !containsForm(pipeline.Metadata.Order, payload.Form) {
			writeError(w, r, "response.create", &validate.FieldError{Path: "form", Message: "this form is not part of the pipeline"})
			return
		}

		identity := middlewares.Identity(r)

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// duplicate and sequence checks come before answer validation, so an
		// out-of-order post is refused for its position, not its content
		trk := tracker.Tracker{Now: app.Now}
		sub, err := trk.Record(r.Context(), tx, pipeline, payload.Form, identity)
		if err != nil {
			writeError(w, r, "response.create", err)
			return
		}

		fields, err := getFormFields(r.Context(), app.DB, payload.Form)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.get_fields", err)
			return
		}
		data, err := validate.Answers(fields, payload.Data)
		if err != nil {
			// the rollback discards the submission advance recorded above
			writeError(w, r, "response.create", err)
			return
		}

		dataJson, err := json.Marshal(data)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.parse_data", err)
			return
		}
		owner, session := identityArgs(identity)

		now := app.Now()
		var responseId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO response (pipeline_id, form_id, pipeline_submission_id, owner_id, session_key, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			pipeline.ID,
			payload.Form,
			sub.ID,
			owner,
			session,
			string(dataJson),
			now,
			now,
		).Scan(&responseId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.commit", err)
			return
		}

		publish(app, events.Event{
			Type:       events.ResponseCreated,
			PipelineID: pipeline.ID,
			OwnerID:    pipeline.OwnerID,
			ResponseID: responseId,
		})

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":                  responseId,
			"pipeline_submission": sub.ID,
			"is_completed":        sub.IsCompleted,
		})
	}
}

// UpdateResponse lets the original responder amend their answers, unless the
// pipeline is set as unchangeable.
func UpdateResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		payload := responsePayload{}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		resp, err := getResponseById(r.Context(), app.DB, responseId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "update_response", responseId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.get_response", err)
			return
		}

		pipeline, err := getPipelineById(r.Context(), app.DB, resp.PipelineID)
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.get_pipeline", err)
			return
		}

		err = tracker.AuthorizeUpdate(resp, pipeline, middlewares.Identity(r))
		if err != nil {
			writeError(w, r, "response.update", err)
			return
		}

		fields, err := getFormFields(r.Context(), app.DB, resp.FormID)
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.get_fields", err)
			return
		}
		data, err := validate.Answers(fields, payload.Data)
		if err != nil {
			writeError(w, r, "response.update", err)
			return
		}

		dataJson, err := json.Marshal(data)
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.parse_data", err)
			return
		}

		_, err = app.ExecContext(r.Context(), `
			UPDATE response
			SET
				data = ?,
				updated_at = ?
			WHERE id = ?`,
			string(dataJson),
			app.Now(),
			responseId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_response", err)
			return
		}

		publish(app, events.Event{
			Type:       events.ResponseUpdated,
			PipelineID: pipeline.ID,
			OwnerID:    pipeline.OwnerID,
			ResponseID: responseId,
		})

		resp.Data = data
		render.JSON(w, r, resp)
	}
}

// GetSubmission shows an identity its own progress through a pipeline, with
// the data of every response given so far.
func GetSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		identity := middlewares.Identity(r)
		clause, arg := "session_key = ?", any(identity.SessionKey)
		if identity.IsAuthenticated() {
			clause, arg = "owner_id = ?", identity.UserID
		}

		sub := model.PipelineSubmission{}
		var rawForms string
		err = app.QueryRowContext(r.Context(), `
			SELECT id, pipeline_id, responsed_forms, is_completed, created_at, updated_at
			FROM pipeline_submission
			WHERE id = ?
				AND `+clause,
			submissionId, arg,
		).Scan(&sub.ID, &sub.PipelineID, &rawForms, &sub.IsCompleted, &sub.CreatedAt, &sub.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_submission", submissionId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission", err)
			return
		}
		err = json.Unmarshal([]byte(rawForms), &sub.ResponsedForms)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission.parse_responsed_forms", err)
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT form_id, data
			FROM response
			WHERE pipeline_submission_id = ?`,
			submissionId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission.responses", err)
			return
		}
		defer rows.Close()

		responses := map[string]map[string]any{}
		for rows.Next() {
			var formId int
			var raw string
			err = rows.Scan(&formId, &raw)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submission.responses.scan", err)
				return
			}
			data := map[string]any{}
			err = json.Unmarshal([]byte(raw), &data)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submission.responses.parse_data", err)
				return
			}
			responses[strconv.Itoa(formId)] = data
		}

		render.JSON(w, r, map[string]any{
			"id":              sub.ID,
			"pipeline":        sub.PipelineID,
			"responsed_forms": sub.ResponsedForms,
			"is_completed":    sub.IsCompleted,
			"created_at":      sub.CreatedAt,
			"updated_at":      sub.UpdatedAt,
			"responses":       responses,
		})
	}
}

func containsForm(order []int, formId int) bool {
	for _, id := range order {
		if id == formId {
			return true
		}
	}
	return false
}

// publish is best effort: a lost notification must never fail the write that
// caused it.
func publish(app app.App, e events.Event) {
	err := app.Bus.Publish(events.Topic(e.PipelineID), e)
	if err != nil {
		log.Errorf("events.publish: %s", err)
	}
}
