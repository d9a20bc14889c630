package httpx

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/formpipe/log"
)

// JSONError logs a debug message and sends a JSON error body with the given
// status.
func JSONError(w http.ResponseWriter, r *http.Request, status int, code string, body any) {
	log.Debugf("%s: %v", code, body)
	render.Status(r, status)
	render.JSON(w, r, body)
}
