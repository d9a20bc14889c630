package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
	"github.com/mbolis/formpipe/routes/middlewares"
	"github.com/mbolis/formpipe/validate"
)

type formPayload struct {
	Title      string             `json:"title"`
	Metadata   model.FormMetadata `json:"metadata"`
	Fields     []int              `json:"fields"`
	Categories []string           `json:"categories"`
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := formPayload{}
		err := render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if payload.Title == "" {
			writeError(w, r, "form.create", &validate.FieldError{Path: "title", Message: "this field is required"})
			return
		}

		userId := middlewares.UserID(r)

		n, err := countOwnedRows(r.Context(), app.DB, "field", payload.Fields, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.get_fields", err)
			return
		}
		if n != len(payload.Fields) {
			writeError(w, r, "form.create", &validate.FieldError{Path: "fields", Message: "some fields do not exist or are not yours"})
			return
		}
		err = validate.FormOrder(payload.Metadata.Order, payload.Fields)
		if err != nil {
			writeError(w, r, "form.create", err)
			return
		}

		metadataJson, _ := json.Marshal(payload.Metadata)

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var formId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO form (owner_id, title, metadata) VALUES (?, ?, ?)
			RETURNING id`,
			userId,
			payload.Title,
			string(metadataJson),
		).Scan(&formId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		err = linkFormFields(r.Context(), tx, formId, payload.Fields)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.fields", err)
			return
		}

		err = linkCategories(r.Context(), tx, "form_category", "form_id", formId, payload.Categories, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.categories", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": formId,
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middlewares.UserID(r)

		query := `
			SELECT f.id, f.title, f.metadata
			FROM form f
			WHERE f.owner_id = ?`
		args := []any{userId}

		if category := r.URL.Query().Get("category"); category != "" {
			query = `
				SELECT f.id, f.title, f.metadata
				FROM form f
				INNER JOIN form_category fc ON (f.id = fc.form_id)
				INNER JOIN category c ON (fc.category_id = c.id)
				WHERE f.owner_id = ?
					AND c.name = ?`
			args = append(args, category)
		}

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}
		defer rows.Close()

		forms := []model.Form{}
		for rows.Next() {
			f := model.Form{}
			var metadata string
			err = rows.Scan(&f.ID, &f.Title, &metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.scan", err)
				return
			}
			err = json.Unmarshal([]byte(metadata), &f.Metadata)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.parse_metadata", err)
				return
			}
			forms = append(forms, f)
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		f := model.Form{}
		var metadata string
		err = app.QueryRowContext(r.Context(), `
			SELECT id, title, metadata
			FROM form
			WHERE id = ?
				AND owner_id = ?`,
			formId,
			middlewares.UserID(r),
		).Scan(&f.ID, &f.Title, &metadata)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		err = json.Unmarshal([]byte(metadata), &f.Metadata)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.parse_metadata", err)
			return
		}

		f.Fields, err = getFormFields(r.Context(), app.DB, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.fields", err)
			return
		}
		f.Categories, err = getCategories(r.Context(), app.DB, "form_category", "form_id", formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.categories", err)
			return
		}

		render.JSON(w, r, f)
	}
}

func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		userId := middlewares.UserID(r)

		f := model.Form{}
		var storedMetadata string
		err = app.QueryRowContext(r.Context(), `
			SELECT title, metadata
			FROM form
			WHERE id = ?
				AND owner_id = ?`,
			formId,
			userId,
		).Scan(&f.Title, &storedMetadata)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "update_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.get_form", err)
			return
		}
		err = json.Unmarshal([]byte(storedMetadata), &f.Metadata)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.parse_metadata", err)
			return
		}

		fieldIds, err := getLinkedFields(r.Context(), app.DB, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.get_links", err)
			return
		}
		categories, err := getCategories(r.Context(), app.DB, "form_category", "form_id", formId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.get_categories", err)
			return
		}

		// updates are partial: decoding over the stored values keeps every
		// key the payload leaves out
		payload := formPayload{
			Title:      f.Title,
			Metadata:   f.Metadata,
			Fields:     fieldIds,
			Categories: categories,
		}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		n, err := countOwnedRows(r.Context(), app.DB, "field", payload.Fields, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.get_fields", err)
			return
		}
		if n != len(payload.Fields) {
			writeError(w, r, "form.update", &validate.FieldError{Path: "fields", Message: "some fields do not exist or are not yours"})
			return
		}
		err = validate.FormOrder(payload.Metadata.Order, payload.Fields)
		if err != nil {
			writeError(w, r, "form.update", err)
			return
		}

		metadataJson, _ := json.Marshal(payload.Metadata)

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(r.Context(), `
			UPDATE form
			SET
				title = ?,
				metadata = ?
			WHERE id = ?
				AND owner_id = ?`,
			payload.Title,
			string(metadataJson),
			formId,
			userId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form", err)
			return
		}
		n64, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.verify", err)
			return
		}
		if n64 < 1 {
			httpx.LogNotFound(w, "update_form", formId)
			return
		}

		// delete all field links, then recreate
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM form_field
			WHERE form_id = ?`,
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.delete_fields", err)
			return
		}
		err = linkFormFields(r.Context(), tx, formId, payload.Fields)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.fields", err)
			return
		}

		err = linkCategories(r.Context(), tx, "form_category", "form_id", formId, payload.Categories, userId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.categories", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM form
			WHERE id = ?
				AND owner_id = ?`,
			formId,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_form", formId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getLinkedFields(ctx context.Context, db *sql.DB, formId int) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT field_id FROM form_field
		WHERE form_id = ?`,
		formId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		err = rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func linkFormFields(ctx context.Context, tx *sql.Tx, formId int, fieldIds []int) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO form_field (form_id, field_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fieldId := range fieldIds {
		_, err = stmt.ExecContext(ctx, formId, fieldId)
		if err != nil {
			return err
		}
	}
	return nil
}

// linkCategories replaces the category links of a form or pipeline, creating
// missing categories on the fly.
func linkCategories(ctx context.Context, tx *sql.Tx, table, column string, id int, names []string, ownerId int) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM `+table+`
		WHERE `+column+` = ?`,
		id,
	)
	if err != nil {
		return err
	}

	for _, name := range names {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO category (owner_id, name) VALUES (?, ?)`,
			ownerId, name,
		)
		if err != nil {
			return err
		}

		var categoryId int
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM category
			WHERE owner_id = ?
				AND name = ?`,
			ownerId, name,
		).Scan(&categoryId)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO `+table+` (`+column+`, category_id) VALUES (?, ?)`,
			id, categoryId,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func getCategories(ctx context.Context, db *sql.DB, table, column string, id int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.name
		FROM category c
		INNER JOIN `+table+` l ON (c.id = l.category_id)
		WHERE l.`+column+` = ?`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
