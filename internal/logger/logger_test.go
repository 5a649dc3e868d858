package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and returns a cleanup
// function restoring the previous writer, level and format.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	prevOutput, prevColor := output, useColor
	output, useColor = buf, false
	mu.Unlock()
	prevLevel := Level(currentLevel.Load())
	prevFormat, _ := currentFormat.Load().(string)
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = prevOutput, prevColor
		mu.Unlock()
		currentLevel.Store(int32(prevLevel))
		currentFormat.Store(prevFormat)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("WARN")
	SetLevel("LOUD")

	Info("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("trace")
	assert.False(t, ok)

	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestTextFormatting(t *testing.T) {
	t.Run("TimestampAndLevel", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		Info("hello")

		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[INFO\] hello`, buf.String())
	})

	t.Run("StructuredFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		Info("bind", KeyUser, "alice", KeyMessageID, 7, KeyResult, "invalid credentials")

		out := buf.String()
		assert.Contains(t, out, "user=alice")
		assert.Contains(t, out, "msg_id=7")
		assert.Contains(t, out, `result="invalid credentials"`)
	})

	t.Run("GroupsAreFlattened", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		With("component", "radius").WithGroup("req").Info("packet", "id", 3)

		out := buf.String()
		assert.Contains(t, out, "component=radius")
		assert.Contains(t, out, "req.id=3")
	})

	t.Run("NilErrorAttrIsDropped", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		Info("reload", Err(nil))

		assert.NotContains(t, buf.String(), "error=")
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("reload failed", Err(errors.New("duplicate user")), KeyUsers, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "reload failed", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "duplicate user", rec[KeyError])
	assert.EqualValues(t, 3, rec[KeyUsers])
}

func TestContextLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	lc := NewLogContext("ldap", "10.0.0.1:50000").WithOperation("bind").WithUser("alice")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "bind succeeded")

	out := buf.String()
	assert.Contains(t, out, "protocol=ldap")
	assert.Contains(t, out, "client=10.0.0.1:50000")
	assert.Contains(t, out, "op=bind")
	assert.Contains(t, out, "user=alice")

	t.Run("WithoutLogContext", func(t *testing.T) {
		buf.Reset()
		DebugCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
		assert.NotContains(t, buf.String(), "protocol=")
	})
}

func TestLogContextCopies(t *testing.T) {
	base := NewLogContext("radius", "127.0.0.1:1234")
	withUser := base.WithUser("bob")

	assert.Empty(t, base.User)
	assert.Equal(t, "bob", withUser.User)
	assert.Equal(t, "radius", withUser.Protocol)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.WithOperation("x"))
	assert.Zero(t, nilCtx.DurationMs())
	assert.Nil(t, FromContext(context.Background()))
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "worker", n, "iter", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1000)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "["), "interleaved line: %q", l)
	}
}

func TestInit(t *testing.T) {
	captureOutput(t)

	t.Run("FileOutput", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "concess.log")
		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
		Info("written to file")
		t.Cleanup(func() { InitWithWriter(new(bytes.Buffer), "INFO", "text", false) })
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		assert.Error(t, Init(Config{Level: "LOUD"}))
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		assert.Error(t, Init(Config{Format: "xml"}))
	})
}

func TestAttrHelpers(t *testing.T) {
	assert.Equal(t, slog.String(KeyClient, "1.2.3.4:5"), Client("1.2.3.4:5"))
	assert.Equal(t, slog.Int64(KeyMessageID, 9), MessageID(9))
	assert.Equal(t, slog.String(KeyUser, "alice"), User("alice"))
}
