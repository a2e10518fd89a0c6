package notification

import (
	"os"
	"testing"

	"go.uber.org/zap"

	"chatgrid-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	logger.Sugar = logger.Log.Sugar()
	os.Exit(m.Run())
}
