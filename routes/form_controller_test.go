package routes

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/routes/middlewares"
)

func formRouter(app app.App, userId string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares.Session, claims(userId))

	r.Post("/api/forms", CreateForm(app))
	r.Get("/api/forms/{id}", GetFormById(app))
	r.Put("/api/forms/{id}", UpdateForm(app))

	return r
}

func TestUpdateFormPartial(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := formRouter(app, "1")

	// only the title travels, field links and order keep their stored values
	w := doJSON(t, router, "PUT", "/api/forms/10", "", `{"title": "Renamed"}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, router, "GET", "/api/forms/10", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "Renamed", body["title"])

	metadata := body["metadata"].(map[string]any)
	require.Equal(t, []any{1.0}, metadata["order"])

	fields := body["fields"].([]any)
	require.Len(t, fields, 1)
}

func TestUpdateFormReplacesFields(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := formRouter(app, "1")

	w := doJSON(t, router, "PUT", "/api/forms/10", "", `{"fields": [], "metadata": {"order": []}}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	var n int
	err := app.QueryRow(`SELECT COUNT(*) FROM form_field WHERE form_id = 10`).Scan(&n)
	require.NoError(t, err)
	require.Zero(t, n, "an explicit empty list unlinks every field")
}
