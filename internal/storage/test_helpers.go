package storage

import (
	"context"
	"testing"
	"time"

	"github.com/portfolio-tracker/internal/logging"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := testContextWithCancel(t)
	t.Cleanup(cancel)
	return ctx
}

func testContextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatJSON)
}
