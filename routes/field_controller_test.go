package routes

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/routes/middlewares"
)

// claims injects the bearer token claims directly, standing in for
// oauth.Authorize in tests.
func claims(userId string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), oauth.ClaimsContext, map[string]string{"user_id": userId})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func fieldRouter(app app.App, userId string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares.Session, claims(userId))

	r.Post("/api/fields", CreateField(app))
	r.Get("/api/fields/{id}", GetFieldById(app))
	r.Put("/api/fields/{id}", UpdateField(app))
	r.Delete("/api/fields/{id}", DeleteField(app))

	return r
}

func TestCreateField(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)
	router := fieldRouter(app, "1")

	w := doJSON(t, router, "POST", "/api/fields", "", `{
		"title": "Your Age!",
		"type": 4,
		"answer_required": true,
		"metadata": {"number_max_value": 120, "number_min_value": 0, "bogus_key": true}
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fieldId := decodeBody(t, w)["id"].(float64)
	require.Equal(t, 1.0, fieldId)

	w = doJSON(t, router, "GET", "/api/fields/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "your_age", body["slug"], "slug derived from the title")

	metadata := body["metadata"].(map[string]any)
	require.NotContains(t, metadata, "bogus_key", "unknown metadata keys are stripped")
	require.Equal(t, 120.0, metadata["number_max_value"])
}

func TestCreateFieldInvalidMetadata(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)
	router := fieldRouter(app, "1")

	w := doJSON(t, router, "POST", "/api/fields", "", `{
		"title": "Name",
		"type": 1,
		"metadata": {"placeholder": "x"}
	}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	require.Contains(t, body, "metadata.answer_max_length")
	require.Contains(t, body, "metadata.regex_value")
}

func TestCreateFieldDuplicateSlug(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)
	router := fieldRouter(app, "1")

	payload := `{"title": "Age", "type": 4, "metadata": {"number_max_value": 10, "number_min_value": 0}}`
	w := doJSON(t, router, "POST", "/api/fields", "", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "POST", "/api/fields", "", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w), "slug")
}

func TestUpdateFieldRejectsTypeChange(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)
	router := fieldRouter(app, "1")

	w := doJSON(t, router, "POST", "/api/fields", "", `{"title": "Age", "type": 4, "metadata": {"number_max_value": 10, "number_min_value": 0}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PUT", "/api/fields/1", "", `{"title": "Age", "type": 2, "metadata": {"answer_max_length": 10, "answer_min_length": 0}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w), "type")

	w = doJSON(t, router, "PUT", "/api/fields/1", "", `{"title": "Age", "type": 4, "metadata": {"number_max_value": 99, "number_min_value": 1}}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestUpdateFieldPartial(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', '')`)
	require.NoError(t, err)
	router := fieldRouter(app, "1")

	w := doJSON(t, router, "POST", "/api/fields", "", `{
		"title": "Your Age!",
		"type": 4,
		"answer_required": true,
		"metadata": {"number_max_value": 120, "number_min_value": 0}
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// only the description travels, everything else keeps its stored value
	w = doJSON(t, router, "PUT", "/api/fields/1", "", `{"description": "How old are you?"}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, router, "GET", "/api/fields/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "Your Age!", body["title"])
	require.Equal(t, "your_age", body["slug"])
	require.Equal(t, "How old are you?", body["description"])
	require.Equal(t, true, body["answer_required"])

	metadata := body["metadata"].(map[string]any)
	require.Equal(t, 120.0, metadata["number_max_value"])
}

func TestFieldOwnerScoping(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Exec(`INSERT INTO user (id, username, password_hash) VALUES (1, 'owner', ''), (2, 'other', '')`)
	require.NoError(t, err)

	owner := fieldRouter(app, "1")
	other := fieldRouter(app, "2")

	w := doJSON(t, owner, "POST", "/api/fields", "", `{"title": "Age", "type": 4, "metadata": {"number_max_value": 10, "number_min_value": 0}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, other, "GET", "/api/fields/1", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, other, "DELETE", "/api/fields/1", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteFieldInUse(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := fieldRouter(app, "1")

	w := doJSON(t, router, "DELETE", "/api/fields/1", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code, "field 1 is linked to form 10")
}
