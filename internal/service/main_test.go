package service

import (
	"os"
	"testing"

	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/observability"
)

func TestMain(m *testing.M) {
	cfg := config.NewDefaultConfig()
	logCfg := cfg.Logger()
	logCfg.LogFile = ""
	observability.InitializeLogger(logCfg)

	exitCode := m.Run()

	observability.Sync()
	observability.ResetForTest()
	os.Exit(exitCode)
}
