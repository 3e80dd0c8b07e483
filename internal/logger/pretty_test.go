package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler_WritesMessageAndAttrs(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Info("stock batch applied", slog.Int("products", 3))

	out := buf.String()
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "stock batch applied")
	assert.Contains(t, out, `"products":3`)
}

func TestPrettyHandler_CarriesWithAttrs(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.With(slog.String("op", "checkout.Checkout")).Info("checkout completed")

	assert.Contains(t, buf.String(), `"op":"checkout.Checkout"`)
}

func TestPrettyHandler_RespectsLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Debug("should be dropped")

	assert.Empty(t, buf.String())
}

func TestSetup_ReturnsLoggerForEveryEnv(t *testing.T) {
	for _, env := range []string{EnvLocal, EnvDev, EnvProd, "unknown"} {
		assert.NotNil(t, Setup(env), env)
	}
}
