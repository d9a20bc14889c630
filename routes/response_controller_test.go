package routes

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateResponse(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	require.NotZero(t, body["id"])
	require.Equal(t, true, body["is_completed"], "single-form pipeline completes immediately")
}

func TestCreateResponseValidatesAnswers(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":999}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w), "age")

	w = doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":"42"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code, "numeric strings are not numbers")
}

func TestCreateResponseSequenceBeforeAnswers(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	// second form in a sequential pipeline, reusing the number field
	_, err := app.Exec(`INSERT INTO form (id, owner_id, title, metadata) VALUES (20, 1, 'Extra', '{"order":[1]}')`)
	require.NoError(t, err)
	_, err = app.Exec(`INSERT INTO form_field (form_id, field_id) VALUES (20, 1)`)
	require.NoError(t, err)
	_, err = app.Exec(`UPDATE pipeline SET metadata = '{"order":[10,20]}', hide_next_button = 1 WHERE id = 1`)
	require.NoError(t, err)

	// posting garbage to a still locked form is refused for its position
	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":20,"data":{"1":"garbage"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	require.Contains(t, body["message"], "form with id 10")
	require.NotContains(t, body, "age")

	// an invalid answer to the unlocked form leaves no submission behind
	w = doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":"garbage"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w), "age")

	var n int
	err = app.QueryRow(`SELECT COUNT(*) FROM pipeline_submission`).Scan(&n)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCreateResponseDuplicate(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	responseId := decodeBody(t, w)["id"].(float64)

	w = doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":43}}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "/api/responses/1", decodeBody(t, w)["url"])
	require.Equal(t, 1.0, responseId)

	// a different identity is free to answer
	w = doJSON(t, router, "POST", "/api/responses", "sess2", `{"pipeline":1,"form":10,"data":{"1":43}}`)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateResponsePrivatePipeline(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{password: "s3cret"})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"password":"s3cret","data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestUpdateResponse(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PATCH", "/api/responses/1", "sess1", `{"data":{"1":43}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data string
	err := app.QueryRow(`SELECT data FROM response WHERE id = 1`).Scan(&data)
	require.NoError(t, err)
	require.JSONEq(t, `{"1":43}`, data)
}

func TestUpdateResponseWrongIdentity(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PATCH", "/api/responses/1", "someone-else", `{"data":{"1":43}}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateResponseFrozenPipeline(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{frozen: true})
	router := testRouter(app)

	// answering a frozen pipeline is fine, amending the answer is not
	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PATCH", "/api/responses/1", "sess1", `{"data":{"1":43}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w), "update-error")

	var data string
	err := app.QueryRow(`SELECT data FROM response WHERE id = 1`).Scan(&data)
	require.NoError(t, err)
	require.JSONEq(t, `{"1":42}`, data, "the stored answer is untouched")
}

func TestGetSubmission(t *testing.T) {
	app := newTestApp(t)
	seedSurveyData(t, app.DB, seedOptions{})
	router := testRouter(app)

	w := doJSON(t, router, "POST", "/api/responses", "sess1", `{"pipeline":1,"form":10,"data":{"1":42}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	submissionId := decodeBody(t, w)["pipeline_submission"].(float64)
	require.Equal(t, 1.0, submissionId)

	w = doJSON(t, router, "GET", "/api/submissions/1", "sess1", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["is_completed"])
	responses := body["responses"].(map[string]any)
	require.Contains(t, responses, "10")

	// other identities can not see it
	w = doJSON(t, router, "GET", "/api/submissions/1", "someone-else", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
