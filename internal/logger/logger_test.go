package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hierfs/hierfs/internal/logger"
)

func TestInitLogFileWritesToFile(t *testing.T) {
	path := t.TempDir() + "/hierfs.log"
	err := logger.InitLogFile(logger.Config{
		FilePath: path,
		Format:   "json",
		Severity: logger.DEBUG,
	})
	assert.NoError(t, err)

	logger.Infof("mounted at %s", "/mnt/x")
	logger.Debugf("cache capacity %d", 1024)
}

func TestSetLogFormatDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.SetLogFormat("text")
		logger.SetLogFormat("json")
	})
}
