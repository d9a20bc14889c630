package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/routes/middlewares"
	"github.com/mbolis/formpipe/tracker"
	"github.com/mbolis/formpipe/validate"
)

type pipelinePayload struct {
	Title                       string                 `json:"title"`
	Description                 string                 `json:"description"`
	Metadata                    model.PipelineMetadata `json:"metadata"`
	QuestionsRespondingDuration int                    `json:"questions_responding_duration"`
	StartDatetime               *time.Time             `json:"start_datetime"`
	StopDatetime                *time.Time             `json:"stop_datetime"`
	HidePreviousButton          bool                   `json:"hide_previous_button"`
	HideNextButton              bool                   `json:"hide_next_button"`
	IsPrivate                   bool                   `json:"is_private"`
	Password                    string                 `json:"password"`
	Categories                  []string               `json:"categories"`
}

func (payload pipelinePayload) pipeline() model.Pipeline {
	return model.Pipeline{
		Title:                       payload.Title,
		Description:                 payload.Description,
		Metadata:                    payload.Metadata,
		QuestionsRespondingDuration: payload.QuestionsRespondingDuration,
		StartDatetime:               payload.StartDatetime,
		StopDatetime:                payload.StopDatetime,
		HidePreviousButton:          payload.HidePreviousButton,
		HideNextButton:              payload.HideNextButton,
		IsPrivate:                   payload.IsPrivate,
		Password:                    payload.Password,
	}
}

func CreatePipeline(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := pipelinePayload{}
		err := render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = validate.Pipeline(payload.pipeline())
		if err != nil {
			writeError(w, r, "pipeline.create", err)
			return
		}

		userId := middlewares.UserID(r)

		n, err := countOwnedRows(r.Context(), app.DB, "form", payload.Metadata.Order, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_pipeline.get_forms", err)
			return
		}
		if n != len(payload.Metadata.Order) {
			writeError(w, r, "pipeline.create", &validate.FieldError{Path: "metadata.order", Message: "some forms do not exist or are not yours"})
			return
		}

		metadataJson, _ := json.Marshal(payload.Metadata)

		var password any
		if payload.Password != "" {
			password = payload.Password
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// retry on the rare random slug collision
		var pipelineId int
		var slug string
		for attempt := 0; ; attempt++ {
			slug = validate.RandomSlug()
			err = tx.QueryRowContext(r.Context(), `
				INSERT INTO pipeline (
					owner_id, title, slug, description, metadata,
					questions_responding_duration, start_datetime, stop_datetime,
					hide_previous_button, hide_next_button, is_private, password
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id`,
				userId,
				payload.Title,
				slug,
				payload.Description,
				string(metadataJson),
				payload.QuestionsRespondingDuration,
				payload.StartDatetime,
				payload.StopDatetime,
				payload.HidePreviousButton,
				payload.HideNextButton,
				payload.IsPrivate,
				password,
			).Scan(&pipelineId)
			if isUniqueViolation(err) && attempt < 3 {
				continue
			}
			break
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_pipeline", err)
			return
		}

		err = linkCategories(r.Context(), tx, "pipeline_category", "pipeline_id", pipelineId, payload.Categories, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_pipeline.categories", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_pipeline.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   pipelineId,
			"slug": slug,
		})
	}
}

func ListPipelines(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middlewares.UserID(r)

		query := `
			SELECT p.id, p.title, p.slug, p.description, p.metadata, p.number_of_views
			FROM pipeline p
			WHERE p.owner_id = ?`
		args := []any{userId}

		if category := r.URL.Query().Get("category"); category != "" {
			query = `
				SELECT p.id, p.title, p.slug, p.description, p.metadata, p.number_of_views
				FROM pipeline p
				INNER JOIN pipeline_category pc ON (p.id = pc.pipeline_id)
				INNER JOIN category c ON (pc.category_id = c.id)
				WHERE p.owner_id = ?
					AND c.name = ?`
			args = append(args, category)
		}

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_pipelines", err)
			return
		}
		defer rows.Close()

		pipelines := []model.Pipeline{}
		for rows.Next() {
			p := model.Pipeline{}
			var metadata string
			err = rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &metadata, &p.NumberOfViews)
			if err != nil {
				httpx.LogInternalError(w, "db.get_pipelines.scan", err)
				return
			}
			err = json.Unmarshal([]byte(metadata), &p.Metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.get_pipelines.parse_metadata", err)
				return
			}
			pipelines = append(pipelines, p)
		}

		render.JSON(w, r, map[string]any{
			"pipelines": pipelines,
		})
	}
}

func GetPipelineById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelineId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		pipeline, err := getPipelineById(r.Context(), app.DB, pipelineId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_pipeline", pipelineId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_pipeline", err)
			return
		}
		if pipeline.OwnerID != middlewares.UserID(r) {
			httpx.LogNotFound(w, "get_pipeline", pipelineId)
			return
		}

		pipeline.Categories, err = getCategories(r.Context(), app.DB, "pipeline_category", "pipeline_id", pipelineId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_pipeline.categories", err)
			return
		}

		render.JSON(w, r, pipeline)
	}
}

func UpdatePipeline(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelineId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		userId := middlewares.UserID(r)

		stored, err := getPipelineById(r.Context(), app.DB, pipelineId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "update_pipeline", pipelineId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.get_pipeline", err)
			return
		}
		if stored.OwnerID != userId {
			httpx.LogNotFound(w, "update_pipeline", pipelineId)
			return
		}
		categories, err := getCategories(r.Context(), app.DB, "pipeline_category", "pipeline_id", pipelineId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.get_categories", err)
			return
		}

		// updates are partial: decoding over the stored values keeps every
		// key the payload leaves out, the password included
		payload := pipelinePayload{
			Title:                       stored.Title,
			Description:                 stored.Description,
			Metadata:                    stored.Metadata,
			QuestionsRespondingDuration: stored.QuestionsRespondingDuration,
			StartDatetime:               stored.StartDatetime,
			StopDatetime:                stored.StopDatetime,
			HidePreviousButton:          stored.HidePreviousButton,
			HideNextButton:              stored.HideNextButton,
			IsPrivate:                   stored.IsPrivate,
			Password:                    stored.Password,
			Categories:                  categories,
		}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = validate.Pipeline(payload.pipeline())
		if err != nil {
			writeError(w, r, "pipeline.update", err)
			return
		}

		n, err := countOwnedRows(r.Context(), app.DB, "form", payload.Metadata.Order, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.get_forms", err)
			return
		}
		if n != len(payload.Metadata.Order) {
			writeError(w, r, "pipeline.update", &validate.FieldError{Path: "metadata.order", Message: "some forms do not exist or are not yours"})
			return
		}

		metadataJson, _ := json.Marshal(payload.Metadata)

		var password any
		if payload.Password != "" {
			password = payload.Password
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(r.Context(), `
			UPDATE pipeline
			SET
				title = ?,
				description = ?,
				metadata = ?,
				questions_responding_duration = ?,
				start_datetime = ?,
				stop_datetime = ?,
				hide_previous_button = ?,
				hide_next_button = ?,
				is_private = ?,
				password = ?
			WHERE id = ?
				AND owner_id = ?`,
			payload.Title,
			payload.Description,
			string(metadataJson),
			payload.QuestionsRespondingDuration,
			payload.StartDatetime,
			payload.StopDatetime,
			payload.HidePreviousButton,
			payload.HideNextButton,
			payload.IsPrivate,
			password,
			pipelineId,
			userId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline", err)
			return
		}
		n64, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.verify", err)
			return
		}
		if n64 < 1 {
			httpx.LogNotFound(w, "update_pipeline", pipelineId)
			return
		}

		err = linkCategories(r.Context(), tx, "pipeline_category", "pipeline_id", pipelineId, payload.Categories, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.categories", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_pipeline.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeletePipeline(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelineId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM pipeline
			WHERE id = ?
				AND owner_id = ?`,
			pipelineId,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_pipeline", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_pipeline.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_pipeline", pipelineId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SharePipeline is the public entry point behind the shareable link. Checks
// privacy and scheduling window, counts the visit, and returns the forms the
// calling identity may answer next.
func SharePipeline(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		// the password travels in the body, never in the URL; an empty or
		// absent body is fine
		var payload struct {
			Password string `json:"password"`
		}
		render.DecodeJSON(r.Body, &payload)

		pipeline, err := getPipelineBySlug(r.Context(), app.DB, slug)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "share_pipeline", slug)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.share_pipeline", err)
			return
		}

		err = validate.PipelineWindow(pipeline, app.Now())
		if err != nil {
			writeError(w, r, "pipeline.share", err)
			return
		}
		err = validate.PipelineAccess(pipeline, payload.Password)
		if err != nil {
			writeError(w, r, "pipeline.share", err)
			return
		}

		// count the visit atomically, concurrent visitors must not lose updates
		_, err = app.ExecContext(r.Context(), `
			UPDATE pipeline
			SET number_of_views = number_of_views + 1
			WHERE id = ?`,
			pipeline.ID,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.share_pipeline.count_view", err)
			return
		}
		pipeline.NumberOfViews++

		formIds, err := tracker.NextForms(r.Context(), app.DB, pipeline, middlewares.Identity(r))
		if err != nil {
			httpx.LogInternalError(w, "db.share_pipeline.next_forms", err)
			return
		}

		forms := []model.Form{}
		for _, formId := range formIds {
			f := model.Form{}
			var metadata string
			err = app.QueryRowContext(r.Context(), `
				SELECT id, title, metadata FROM form WHERE id = ?`,
				formId,
			).Scan(&f.ID, &f.Title, &metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.share_pipeline.get_form", err)
				return
			}
			err = json.Unmarshal([]byte(metadata), &f.Metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.share_pipeline.parse_metadata", err)
				return
			}
			f.Fields, err = getFormFields(r.Context(), app.DB, formId)
			if err != nil {
				httpx.LogInternalError(w, "db.share_pipeline.get_fields", err)
				return
			}
			forms = append(forms, f)
		}

		render.JSON(w, r, map[string]any{
			"pipeline": pipeline,
			"forms":    forms,
		})
	}
}
