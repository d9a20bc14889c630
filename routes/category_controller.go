package routes

import (
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

func CreateCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := model.Category{}
		err := render.DecodeJSON(r.Body, &category)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if category.Name == "" {
			writeError(w, r, "category.create", &validate.FieldError{Path: "name", Message: "this field is required"})
			return
		}

		var categoryId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO category (owner_id, name) VALUES (?, ?)
			RETURNING id`,
			middlewares.UserID(r),
			category.Name,
		).Scan(&categoryId)
		if isUniqueViolation(err) {
			writeError(w, r, "category.create", &validate.FieldError{Path: "name", Message: "you already have a category with this name"})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_category", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": categoryId,
		})
	}
}

func ListCategories(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, name FROM category
			WHERE owner_id = ?`,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_categories", err)
			return
		}
		defer rows.Close()

		categories := []model.Category{}
		for rows.Next() {
			c := model.Category{}
			err = rows.Scan(&c.ID, &c.Name)
			if err != nil {
				httpx.LogInternalError(w, "db.get_categories.scan", err)
				return
			}
			categories = append(categories, c)
		}

		render.JSON(w, r, map[string]any{
			"categories": categories,
		})
	}
}

func UpdateCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categoryId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		category := model.Category{}
		err = render.DecodeJSON(r.Body, &category)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE category
			SET name = ?
			WHERE id = ?
				AND owner_id = ?`,
			category.Name,
			categoryId,
			middlewares.UserID(r),
		)
		if isUniqueViolation(err) {
			writeError(w, r, "category.update", &validate.FieldError{Path: "name", Message: "you already have a category with this name"})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_category", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_category.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_category", categoryId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categoryId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM category
			WHERE id = ?
				AND owner_id = ?`,
			categoryId,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_category", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_category.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_category", categoryId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
