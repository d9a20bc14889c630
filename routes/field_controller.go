package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mattn/go-sqlite3"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/routes/middlewares"
	"github.com/mbolis/formpipe/validate"
)

var reNoIdent = regexp.MustCompile(`\W+`)

// commonRegexes are canned regex_value presets clients can offer when
// defining short text fields.
var commonRegexes = map[string]string{
	"english characters": "^[a-zA-Z ]*$",
	"numbers":            "^[0-9]*$",
	"email":              "^[a-zA-Z0-9_.±]+@[a-zA-Z0-9-]+.[a-zA-Z0-9-.]+$",
	"time":               "^([0-1]?[0-9]|20|21|22|23):([0-5]?[0-9])(:([0-5]?[0-9]))?$",
	"ip":                 `^((25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`,
}

func CommonRegexes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, commonRegexes)
	}
}

type fieldPayload struct {
	Title          string          `json:"title"`
	Slug           string          `json:"slug"`
	Description    string          `json:"description"`
	Type           model.FieldType `json:"type"`
	AnswerRequired bool            `json:"answer_required"`
	ErrorMessage   string          `json:"error_message"`
	Metadata       map[string]any  `json:"metadata"`
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = reNoIdent.ReplaceAllLiteralString(s, " ")
	return strings.Join(strings.Fields(s), "_")
}

func CreateField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := fieldPayload{}
		err := render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if payload.Title == "" {
			writeError(w, r, "field.create", &validate.FieldError{Path: "title", Message: "this field is required"})
			return
		}
		metadata, err := validate.Metadata(payload.Type, payload.Metadata)
		if err != nil {
			writeError(w, r, "field.create", err)
			return
		}

		slug := payload.Slug
		if slug == "" {
			slug = slugify(payload.Title)
		}

		metadataJson, err := json.Marshal(metadata)
		if err != nil {
			httpx.LogInternalError(w, "field.create.parse_metadata", err)
			return
		}

		var fieldId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO field (owner_id, title, slug, description, type, answer_required, error_message, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			middlewares.UserID(r),
			payload.Title,
			slug,
			payload.Description,
			payload.Type,
			payload.AnswerRequired,
			payload.ErrorMessage,
			string(metadataJson),
		).Scan(&fieldId)
		if isUniqueViolation(err) {
			writeError(w, r, "field.create", &validate.FieldError{Path: "slug", Message: "you already have a field with this slug"})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_field", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": fieldId,
		})
	}
}

func ListFields(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, title, slug, description, type, answer_required, error_message, metadata
			FROM field
			WHERE owner_id = ?`,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_fields", err)
			return
		}
		defer rows.Close()

		fields := []model.Field{}
		for rows.Next() {
			f := model.Field{}
			var metadata string
			err = rows.Scan(&f.ID, &f.Title, &f.Slug, &f.Description, &f.Type, &f.AnswerRequired, &f.ErrorMessage, &metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.get_fields.scan", err)
				return
			}
			f.Metadata, err = model.UnmarshalMetadata(f.Type, []byte(metadata))
			if err != nil {
				httpx.LogInternalError(w, "db.get_fields.parse_metadata", err)
				return
			}
			fields = append(fields, f)
		}

		render.JSON(w, r, map[string]any{
			"fields": fields,
		})
	}
}

func GetFieldById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		f := model.Field{}
		var metadata string
		err = app.QueryRowContext(r.Context(), `
			SELECT id, title, slug, description, type, answer_required, error_message, metadata
			FROM field
			WHERE id = ?
				AND owner_id = ?`,
			fieldId,
			middlewares.UserID(r),
		).Scan(&f.ID, &f.Title, &f.Slug, &f.Description, &f.Type, &f.AnswerRequired, &f.ErrorMessage, &metadata)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_field", fieldId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_field", err)
			return
		}

		f.Metadata, err = model.UnmarshalMetadata(f.Type, []byte(metadata))
		if err != nil {
			httpx.LogInternalError(w, "db.get_field.parse_metadata", err)
			return
		}

		render.JSON(w, r, f)
	}
}

func UpdateField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		f := model.Field{}
		var storedMetadata string
		err = app.QueryRowContext(r.Context(), `
			SELECT title, slug, description, type, answer_required, error_message, metadata
			FROM field
			WHERE id = ?
				AND owner_id = ?`,
			fieldId,
			middlewares.UserID(r),
		).Scan(&f.Title, &f.Slug, &f.Description, &f.Type, &f.AnswerRequired, &f.ErrorMessage, &storedMetadata)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "update_field", fieldId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_field.get_field", err)
			return
		}

		// updates are partial: decoding over the stored values keeps every
		// key the payload leaves out
		payload := fieldPayload{
			Title:          f.Title,
			Slug:           f.Slug,
			Description:    f.Description,
			Type:           f.Type,
			AnswerRequired: f.AnswerRequired,
			ErrorMessage:   f.ErrorMessage,
		}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		// a field type is frozen at creation: existing answers depend on it
		if payload.Type != f.Type {
			writeError(w, r, "field.update", &validate.FieldError{Path: "type", Message: "the field type can not be changed"})
			return
		}

		metadataJson := storedMetadata
		if payload.Metadata != nil {
			metadata, err := validate.Metadata(f.Type, payload.Metadata)
			if err != nil {
				writeError(w, r, "field.update", err)
				return
			}
			b, err := json.Marshal(metadata)
			if err != nil {
				httpx.LogInternalError(w, "field.update.parse_metadata", err)
				return
			}
			metadataJson = string(b)
		}

		slug := payload.Slug
		if slug == "" {
			slug = slugify(payload.Title)
		}

		_, err = app.ExecContext(r.Context(), `
			UPDATE field
			SET
				title = ?,
				slug = ?,
				description = ?,
				answer_required = ?,
				error_message = ?,
				metadata = ?
			WHERE id = ?`,
			payload.Title,
			slug,
			payload.Description,
			payload.AnswerRequired,
			payload.ErrorMessage,
			metadataJson,
			fieldId,
		)
		if isUniqueViolation(err) {
			writeError(w, r, "field.update", &validate.FieldError{Path: "slug", Message: "you already have a field with this slug"})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_field", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM field
			WHERE id = ?
				AND owner_id = ?`,
			fieldId,
			middlewares.UserID(r),
		)
		if isConstraintViolation(err) {
			writeError(w, r, "field.delete", &validate.FieldError{Path: "detail", Message: "this field is used by a form and can not be deleted"})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_field", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_field.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_field", fieldId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	return errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isConstraintViolation(err error) bool {
	var sqlErr sqlite3.Error
	return errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint
}
