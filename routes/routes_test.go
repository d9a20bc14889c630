package routes

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/config"
	"github.com/mbolis/formpipe/database"
	"github.com/mbolis/formpipe/events"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/routes/middlewares"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) app.App {
	t.Helper()

	db, err := database.Open(config.Config{DBUrl: filepath.Join(t.TempDir(), "test.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return app.App{
		DB:     db,
		Config: config.Config{TokenSecret: "test-secret", TokenTTL: time.Minute},
		Bus:    events.NewInProcBus(),
		Now:    func() time.Time { return t0 },
	}
}

type seedOptions struct {
	frozen   bool
	password string
}

// one user, one number field (id 1), one form (id 10), one pipeline (id 1)
// reachable at slug "testslug"
func seedSurveyData(t *testing.T, db *sql.DB, opts seedOptions) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)

	metadata, _ := json.Marshal(model.NumberMetadata{NumberMaxValue: 100, NumberMinValue: 0})
	_, err = db.Exec(`
		INSERT INTO field (id, owner_id, title, slug, type, metadata)
		VALUES (1, 1, 'Age', 'age', ?, ?)`,
		model.TypeNumber, string(metadata),
	)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO form (id, owner_id, title, metadata) VALUES (10, 1, 'Profile', '{"order":[1]}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO form_field (form_id, field_id) VALUES (10, 1)`)
	require.NoError(t, err)

	var password any
	if opts.password != "" {
		password = opts.password
	}
	_, err = db.Exec(`
		INSERT INTO pipeline (id, owner_id, title, slug, metadata, questions_responding_duration, hide_previous_button, is_private, password)
		VALUES (1, 1, 'pipeline', 'testslug', '{"order":[10]}', 10, ?, ?, ?)`,
		opts.frozen, opts.password != "", password,
	)
	require.NoError(t, err)
}

func testRouter(app app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares.Session)

	r.Post("/api/responses", CreateResponse(app))
	r.Patch("/api/responses/{id}", UpdateResponse(app))
	r.Get("/api/submissions/{id}", GetSubmission(app))
	r.Get("/api/pipelines/share/{slug}", SharePipeline(app))

	return r
}

func doJSON(t *testing.T, router http.Handler, method, target, session, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("content-type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: middlewares.SessionCookie, Value: session})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	body := map[string]any{}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	return body
}
