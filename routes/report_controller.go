package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/events"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/report"
	"github.com/mbolis/formpipe/routes/middlewares"
	"github.com/mbolis/formpipe/validate"
)

func getOwnedPipeline(app app.App, w http.ResponseWriter, r *http.Request) (model.Pipeline, bool) {
	pipelineId, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
		return model.Pipeline{}, false
	}

	pipeline, err := getPipelineById(r.Context(), app.DB, pipelineId)
	if errors.Is(err, sql.ErrNoRows) {
		httpx.LogNotFound(w, "get_report", pipelineId)
		return pipeline, false
	}
	if err != nil {
		httpx.LogInternalError(w, "db.get_report.get_pipeline", err)
		return pipeline, false
	}

	if pipeline.OwnerID != middlewares.UserID(r) {
		writeError(w, r, "report.owner", &validate.AuthorizationError{
			Path:    "permission-denied",
			Message: "you are not the owner of this pipeline",
		})
		return pipeline, false
	}
	return pipeline, true
}

func GetReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipeline, ok := getOwnedPipeline(app, w, r)
		if !ok {
			return
		}

		rep, err := report.Build(r.Context(), app.DB, pipeline)
		if err != nil {
			httpx.LogInternalError(w, "report.build", err)
			return
		}

		render.JSON(w, r, rep)
	}
}

func PeriodicReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipeline, ok := getOwnedPipeline(app, w, r)
		if !ok {
			return
		}

		window, err := report.Window(r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, r, "report.periodic", &validate.FieldError{Path: "period", Message: err.Error()})
			return
		}

		submissions, err := report.Periodic(r.Context(), app.DB, pipeline.ID, app.Now().Add(-window))
		if err != nil {
			httpx.LogInternalError(w, "report.periodic", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

func SubscribeReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipeline, ok := getOwnedPipeline(app, w, r)
		if !ok {
			return
		}

		// re-subscribing refreshes the expiry
		_, err := app.ExecContext(r.Context(), `
			INSERT INTO subscriber (user_id, pipeline_id, expired_datetime)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id, pipeline_id)
			DO UPDATE SET expired_datetime = excluded.expired_datetime`,
			middlewares.UserID(r),
			pipeline.ID,
			app.Now().AddDate(0, 0, 30),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.subscribe_report", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message": "You subscribed successfully.",
		})
	}
}

// LiveReport streams report updates over server-sent events. The credential
// is checked once at connect: anyone but the pipeline owner gets a single
// permission-denied message, then the stream closes. The owner gets the
// current report, then a status message plus a rebuilt report on every
// response event.
func LiveReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipelineId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		pipeline, err := getPipelineById(r.Context(), app.DB, pipelineId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "live_report", pipelineId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.live_report.get_pipeline", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpx.LogStatus(w, http.StatusInternalServerError, log.ErrorLevel, "live_report.no_flusher")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		userId := middlewares.UserID(r)
		if userId == 0 || userId != pipeline.OwnerID {
			writeSSE(w, map[string]string{
				"permission-denied": "You are not allowed to see this report.",
			})
			flusher.Flush()
			return
		}

		rep, err := report.Build(r.Context(), app.DB, pipeline)
		if err != nil {
			log.Errorf("report.live.build: %s", err)
			return
		}
		writeSSE(w, rep)
		flusher.Flush()

		// drop events when the client can not keep up, the next one carries a
		// fresh report anyway
		updates := make(chan events.Event, 16)
		unsubscribe, err := app.Bus.Subscribe(events.Topic(pipeline.ID), func(e events.Event) {
			select {
			case updates <- e:
			default:
			}
		})
		if err != nil {
			log.Errorf("report.live.subscribe: %s", err)
			return
		}
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return

			case e := <-updates:
				writeSSE(w, map[string]string{
					"message": e.Type.Message(),
				})

				rep, err := report.Build(r.Context(), app.DB, pipeline)
				if err != nil {
					log.Errorf("report.live.build: %s", err)
					continue
				}
				writeSSE(w, rep)
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w io.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("report.live.marshal: %s", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
