package testlog

import (
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/observability"
)

func Start(t *testing.T) {
	t.Helper()
	observability.InitLogger("parley-test", observability.ProfileTest)
	log.Debug().Str("test", t.Name()).Msg("start")
}
