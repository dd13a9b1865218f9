package observability

import (
	"github.com/danmuck/ndnrevoke/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger applies the runtime logging profile and tags every event with app.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	log.Logger = log.Logger.With().Str("app", app).Logger()
	return log.Logger
}
