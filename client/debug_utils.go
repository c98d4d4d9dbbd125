package client

import (
	"github.com/rs/zerolog"
)

// DebugCookies logs cookie names and domains. Values are never logged.
func DebugCookies(logger zerolog.Logger, key string, cookies []Cookie) {
	logger.Info().Str("session_key", key).Int("count", len(cookies)).Msg("stored cookies")
	for _, c := range cookies {
		logger.Info().
			Str("name", c.Name).
			Str("domain", c.Domain).
			Str("path", c.Path).
			Bool("has_expiry", c.Expiry != nil).
			Msg(" - cookie")
	}
}
