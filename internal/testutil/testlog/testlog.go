package testlog

import (
	"testing"

	"github.com/danmuck/onboardctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start configures the test logging profile and returns a logger tagged with
// the test name.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	logger := log.Logger.With().Str("test", t.Name()).Logger()
	logger.Info().Msg("test start")
	return logger
}
