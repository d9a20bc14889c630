package app

import (
	"database/sql"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/formpipe/config"
	"github.com/mbolis/formpipe/events"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
	Bus events.Bus

	// Injected clock: every time comparison goes through it.
	Now func() time.Time
}
