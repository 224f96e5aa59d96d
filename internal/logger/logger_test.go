package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/config"
)

func TestConfigureLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "petstore.log")
	cfg := config.Config{
		LogFile:   logFile,
		LogFormat: "json",
		LogLevel:  "debug",
	}

	closer := Configure(&cfg)
	require.NotNil(t, closer)
	defer MustClose(t, closer)

	log.Info("this is a test")
	log.WithFields(log.Fields{"request_id": "ab12cd34"}).Debug("debug log message")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	dataStr := string(data)
	require.Contains(t, dataStr, `"msg":"this is a test"`)
	require.Contains(t, dataStr, `"msg":"debug log message"`)
	require.Contains(t, dataStr, `"request_id":"ab12cd34"`)
}

func TestConfigureLogLevel(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "petstore.log")
	cfg := config.Config{
		LogFile:   logFile,
		LogFormat: "json",
		LogLevel:  "warn",
	}

	closer := Configure(&cfg)
	require.NotNil(t, closer)
	defer MustClose(t, closer)

	log.Info("filtered out")
	log.Warn("kept")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.NotContains(t, string(data), "filtered out")
	require.Contains(t, string(data), `"msg":"kept"`)
}

// MustClose calls Close() on the Closer and fails the test in case it returns
// an error. This function is useful when closing via `defer`, as a simple
// `defer require.NoError(t, closer.Close())` would cause `closer.Close()` to
// be executed early already.
func MustClose(tb testing.TB, closer io.Closer) {
	require.NoError(tb, closer.Close())
}

func TestConfigureLoggerDirectoryFailure(t *testing.T) {
	tempDir := t.TempDir()

	cfg := config.Config{
		LogFile:   tempDir,
		LogFormat: "json",
	}

	fileInfo, err := os.Stat(tempDir)
	require.NoError(t, err)
	assert.True(t, fileInfo.IsDir())

	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	closer := Configure(&cfg)
	assert.Nil(t, closer)
	log.Info("this is a test")

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	os.Stderr = old

	assert.Contains(t, buf.String(), "failed to configure log file", "capture the error in stderr")
	assert.Contains(t, buf.String(), "this is a test", "we should still be logging to stderr in this case")
}
