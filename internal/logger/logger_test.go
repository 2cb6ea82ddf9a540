package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Run fn and return what it wrote to stdout and stderr
func capture(t *testing.T, fn func()) (stdout string, stderr string) {
	t.Helper()

	origOut, origErr := os.Stdout, os.Stderr
	defer func() { os.Stdout, os.Stderr = origOut, origErr }()

	rOut, wOut, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")
	rErr, wErr, err := os.Pipe()
	require.NoError(t, err, "failed to create stderr pipe")

	os.Stdout, os.Stderr = wOut, wErr

	fn()

	require.NoError(t, wOut.Close())
	require.NoError(t, wErr.Close())

	outBytes, err := io.ReadAll(rOut)
	require.NoError(t, err, "failed to read stdout pipe")
	errBytes, err := io.ReadAll(rErr)
	require.NoError(t, err, "failed to read stderr pipe")

	return string(outBytes), string(errBytes)
}

func decodeJSON(t *testing.T, line string) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), "log line must be json: %s", line)
	return entry
}

func TestLogger_parseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)

			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}

	for _, value := range []string{"", "warning", "trace"} {
		t.Run("invalid "+value, func(t *testing.T) {
			_, err := parseLevel(value)
			require.Error(t, err)
		})
	}
}

func TestLogger_NewTextLogger(t *testing.T) {
	stdout, stderr := capture(t, func() {
		logger, err := NewTextLogger(LevelInfo)
		require.NoError(t, err)

		logger.Info("User signed up", "user_id", "0b7e2a4c")
	})

	require.Empty(t, stdout, "logs go to stderr only")
	require.Contains(t, stderr, "level=INFO")
	require.Contains(t, stderr, `msg="User signed up"`)
	require.Contains(t, stderr, "user_id=0b7e2a4c")
	require.Contains(t, stderr, "source=logger_test.go:", "source must point to the caller, without directory")
}

func TestLogger_NewJSONLogger(t *testing.T) {
	stdout, stderr := capture(t, func() {
		logger, err := NewJSONLogger(LevelInfo)
		require.NoError(t, err)

		logger.Warn("Refresh token reused, user sessions revoked", "error", "refresh token is used")
	})

	require.Empty(t, stdout, "logs go to stderr only")

	entry := decodeJSON(t, stderr)
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "Refresh token reused, user sessions revoked", entry["msg"])
	require.Equal(t, "refresh token is used", entry["error"])

	source, ok := entry["source"].(map[string]any)
	require.True(t, ok, "source must be logged")
	require.Equal(t, "logger_test.go", source["file"])
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	stdout, stderr := capture(t, func() {
		logger := NewNoOpLogger()
		logger.Debug("Starting token sweeper")
		logger.Info("HTTP request")
		logger.Warn("Refresh failed")
		logger.Error("HTTP request failed")
	})

	require.Empty(t, stdout)
	require.Empty(t, stderr)
}

func TestLogger_Levels(t *testing.T) {
	levels := []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
	calls := map[string]func(Logger){
		LevelDebug: func(l Logger) { l.Debug("Login failed") },
		LevelInfo:  func(l Logger) { l.Info("Login failed") },
		LevelWarn:  func(l Logger) { l.Warn("Login failed") },
		LevelError: func(l Logger) { l.Error("Login failed") },
	}

	// Levels are ordered, a logger writes its own level and above
	for i, loggerLevel := range levels {
		for j, callLevel := range levels {
			t.Run(loggerLevel+" logger, "+callLevel+" call", func(t *testing.T) {
				stdout, stderr := capture(t, func() {
					logger, err := NewTextLogger(loggerLevel)
					require.NoError(t, err)

					calls[callLevel](logger)
				})

				require.Empty(t, stdout)
				require.Equal(t, j >= i, stderr != "", "written: %q", stderr)
				if j >= i {
					require.Contains(t, stderr, "level="+strings.ToUpper(callLevel))
				}
			})
		}
	}
}

func TestLogger_With(t *testing.T) {
	_, stderr := capture(t, func() {
		logger, err := NewJSONLogger(LevelInfo)
		require.NoError(t, err)

		logger.With("component", "tokensweeper").Info("Expired refresh tokens deleted", "count", 3)
		logger.WithGroup("request").Info("HTTP request", "path", "/api/auth/login", "status", 200)
	})

	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	require.Len(t, lines, 2)

	sweeper := decodeJSON(t, lines[0])
	require.Equal(t, "tokensweeper", sweeper["component"])
	require.EqualValues(t, 3, sweeper["count"])

	request := decodeJSON(t, lines[1])
	group, ok := request["request"].(map[string]any)
	require.True(t, ok, "attributes must be grouped")
	require.Equal(t, "/api/auth/login", group["path"])
	require.EqualValues(t, 200, group["status"])
}

func TestLogger_New(t *testing.T) {
	t.Run("dev writes text", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			logger.Info("Starting server", "address", "localhost:8000")
		})

		require.Contains(t, stderr, "address=localhost:8000")
	})

	t.Run("prod writes json", func(t *testing.T) {
		_, stderr := capture(t, func() {
			logger, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			logger.Info("Starting server", "address", "localhost:8000")
		})

		require.Equal(t, "localhost:8000", decodeJSON(t, stderr)["address"])
	})

	t.Run("unknown env fails", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err)
	})

	t.Run("unknown level fails", func(t *testing.T) {
		_, err := New(EnvProduction, "verbose")
		require.Error(t, err)
	})
}
