package routes

import (
	"database/sql"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/routes/middlewares"
)

func pipelineRouter(app app.App, userId string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares.Session, claims(userId))

	r.Get("/api/pipelines/{id}", GetPipelineById(app))
	r.Put("/api/pipelines/{id}", UpdatePipeline(app))

	return r
}

func TestUpdatePipelinePartial(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{password: "s3cret"})
	router := pipelineRouter(app, "1")

	w := doJSON(t, router, "PUT", "/api/pipelines/1", "", `{"title": "renamed"}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	var title string
	var private bool
	var password sql.NullString
	err := app.QueryRow(`SELECT title, is_private, password FROM pipeline WHERE id = 1`).Scan(&title, &private, &password)
	require.NoError(t, err)
	require.Equal(t, "renamed", title)
	require.True(t, private)
	require.Equal(t, "s3cret", password.String, "an absent password key keeps the stored password")

	w = doJSON(t, router, "GET", "/api/pipelines/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	metadata := decodeBody(t, w)["metadata"].(map[string]any)
	require.Equal(t, []any{10.0}, metadata["order"], "the form order keeps its stored value")
}

func TestSharePipeline(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "GET", "/api/pipelines/share/testslug", "sess1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	forms := body["forms"].([]any)
	require.Len(t, forms, 1)

	pipeline := body["pipeline"].(map[string]any)
	require.NotContains(t, pipeline, "password")
	require.Equal(t, 1.0, pipeline["number_of_views"])

	w = doJSON(t, router, "GET", "/api/pipelines/share/unknown", "sess1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharePipelinePassword(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{password: "s3cret"})
	router := testRouter(app)

	w := doJSON(t, router, "GET", "/api/pipelines/share/testslug", "sess1", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "GET", "/api/pipelines/share/testslug", "sess1", `{"password":"wrong"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	// the password never rides the query string, where access logs would see it
	w = doJSON(t, router, "GET", "/api/pipelines/share/testslug?password=s3cret", "sess1", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "GET", "/api/pipelines/share/testslug", "sess1", `{"password":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSharePipelineCountsConcurrentViews(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	const visitors = 20

	codes := make(chan int, visitors)
	var wg sync.WaitGroup
	for i := 0; i < visitors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := doJSON(t, router, "GET", "/api/pipelines/share/testslug", "sess1", "")
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	var views int
	err := app.QueryRow(`SELECT number_of_views FROM pipeline WHERE id = 1`).Scan(&views)
	require.NoError(t, err)
	require.Equal(t, visitors, views, "every concurrent visit must be counted")
}
