package logger

import (
	"path/filepath"
	"testing"

	logging "github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLog(t *testing.T) {
	require.NoError(t, InitLog("", "DEBUG"))
	assert.True(t, logging.GetLevel("pipeline") == logging.DEBUG)

	require.NoError(t, InitLog(filepath.Join(t.TempDir(), "log", "asncountry.log"), "WARNING"))
	assert.True(t, logging.GetLevel("pipeline") == logging.WARNING)

	assert.Error(t, InitLog("", "LOUD"))
}
