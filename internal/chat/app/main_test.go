package app

import (
	"os"
	"testing"

	"team_portal_service/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}
