package observability

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/config"
)

func TestSetupLoggerWritesFile(t *testing.T) {
    prev := zap.L()
    defer zap.ReplaceGlobals(prev)

    path := filepath.Join(t.TempDir(), "logs", "node.log")
    logger, err := SetupLogger(config.LogConfig{Level: "debug", Format: "json", Outputs: []string{path}})
    require.NoError(t, err)

    zap.L().Debug("hello from test", zap.String("k", "v"))
    require.NoError(t, logger.Sync())

    b, err := os.ReadFile(path)
    require.NoError(t, err)
    require.Contains(t, string(b), `"msg":"hello from test"`)
    require.Contains(t, string(b), `"k":"v"`)
}

func TestParseLevel(t *testing.T) {
    require.Equal(t, zap.WarnLevel, parseLevel("WARNING"))
    require.Equal(t, zap.InfoLevel, parseLevel("bogus"))
}
