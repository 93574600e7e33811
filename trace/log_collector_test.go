package trace_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire/trace"
)

func recordAttrs(r slog.Record) map[string]slog.Value {
	attrs := map[string]slog.Value{}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value
		return true
	})
	return attrs
}

func TestLogHandler_CollectsRecords(t *testing.T) {
	c := trace.NewLogCollector(10)
	defer c.Close()

	logger := slog.New(trace.NewLogHandler(c, slog.LevelInfo))
	logger.Debug("ignored")
	logger.With("guid", "page@1").Info("Received event", "method", "load")

	records := c.Tail(10)
	require.Len(t, records, 1)
	assert.Equal(t, "Received event", records[0].Message)

	attrs := recordAttrs(records[0])
	assert.Equal(t, "page@1", attrs["guid"].String())
	assert.Equal(t, "load", attrs["method"].String())
}

func TestLogHandler_Groups(t *testing.T) {
	c := trace.NewLogCollector(10)
	defer c.Close()

	logger := slog.New(trace.NewLogHandler(c, nil)).WithGroup("call").With("id", 1)
	logger.Debug("Sending message", "method", "goto")

	records := c.Tail(1)
	require.Len(t, records, 1)

	var keys []string
	records[0].Attrs(func(a slog.Attr) bool {
		assert.Equal(t, "call", a.Key)
		for _, nested := range a.Value.Group() {
			keys = append(keys, nested.Key)
		}
		return true
	})
	assert.ElementsMatch(t, []string{"id", "method"}, keys)
}

func TestLogCollector_Subscribe(t *testing.T) {
	c := trace.NewLogCollector(10)
	defer c.Close()

	records := trace.Collect(t, c.Subscribe)
	slog.New(trace.NewLogHandler(c, nil)).Warn("Listener panicked")

	received := records.Wait(1)
	assert.Equal(t, slog.LevelWarn, received[0].Level)
}
