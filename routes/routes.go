package routes

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	api.Use(middlewares.Session)

	requireAuth := middlewares.RequireAuth(app.TokenSecret)
	optionalAuth := middlewares.OptionalAuth(app.TokenSecret)

	// CRUD field
	api.Route("/fields", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/common-regexes", CommonRegexes())
		r.Post("/", CreateField(app))
		r.Get("/", ListFields(app))
		r.Get(`/{id:^\d+$}`, GetFieldById(app))
		r.Put(`/{id:^\d+$}`, UpdateField(app))
		r.Delete(`/{id:^\d+$}`, DeleteField(app))
	})

	// CRUD form
	api.Route("/forms", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", CreateForm(app))
		r.Get("/", ListForms(app))
		r.Get(`/{id:^\d+$}`, GetFormById(app))
		r.Put(`/{id:^\d+$}`, UpdateForm(app))
		r.Delete(`/{id:^\d+$}`, DeleteForm(app))
	})

	// CRUD pipeline + public share link
	api.Route("/pipelines", func(r chi.Router) {
		r.With(optionalAuth).Get(`/share/{slug:^[a-z]+$}`, SharePipeline(app))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/", CreatePipeline(app))
			r.Get("/", ListPipelines(app))
			r.Get(`/{id:^\d+$}`, GetPipelineById(app))
			r.Put(`/{id:^\d+$}`, UpdatePipeline(app))
			r.Delete(`/{id:^\d+$}`, DeletePipeline(app))
		})
	})

	// responses are open to anonymous identities
	api.Route("/responses", func(r chi.Router) {
		r.Use(optionalAuth)

		r.Post("/", CreateResponse(app))
		r.Patch(`/{id:^\d+$}`, UpdateResponse(app))
	})
	api.With(optionalAuth).Get(`/submissions/{id:^\d+$}`, GetSubmission(app))

	// reports
	api.Route("/reports", func(r chi.Router) {
		r.With(optionalAuth).Get(`/live/{id:^\d+$}`, LiveReport(app))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get(`/{id:^\d+$}`, GetReport(app))
			r.Get(`/periodic/{id:^\d+$}`, PeriodicReport(app))
			r.Post(`/subscribe/{id:^\d+$}`, SubscribeReport(app))
		})
	})

	// CRUD category
	api.Route("/categories", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", CreateCategory(app))
		r.Get("/", ListCategories(app))
		r.Put(`/{id:^\d+$}`, UpdateCategory(app))
		r.Delete(`/{id:^\d+$}`, DeleteCategory(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}
