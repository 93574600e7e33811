package trace

import (
	"context"
	"log/slog"
	"slices"

	"github.com/samber/lo"
)

// LogCollector keeps recent log records of the client for display next to the protocol trace.
type LogCollector struct {
	records  *Ring[slog.Record]
	notifier *Notifier[slog.Record]
}

// LogOptions configures a LogCollector.
type LogOptions struct {
	// NotifierOptions are options for notification about new records.
	// Default: nil, will use DefaultNotifierOptions()
	NotifierOptions *NotifierOptions
}

// NewLogCollector creates a log collector keeping capacity records.
func NewLogCollector(capacity uint64) *LogCollector {
	return NewLogCollectorWithOptions(capacity, LogOptions{})
}

// NewLogCollectorWithOptions creates a log collector with the specified options.
func NewLogCollectorWithOptions(capacity uint64, options LogOptions) *LogCollector {
	notifierOptions := DefaultNotifierOptions()
	if options.NotifierOptions != nil {
		notifierOptions = *options.NotifierOptions
	}

	return &LogCollector{
		records:  NewRing[slog.Record](capacity),
		notifier: NewNotifierWithOptions[slog.Record](notifierOptions),
	}
}

// Collect stores a record and notifies subscribers.
func (c *LogCollector) Collect(record slog.Record) {
	c.records.Add(record)
	c.notifier.Notify(record)
}

// Tail returns up to n of the most recent records, oldest first.
func (c *LogCollector) Tail(n int) []slog.Record {
	return c.records.Last(uint64(n))
}

// Subscribe returns a channel receiving new log records.
func (c *LogCollector) Subscribe(ctx context.Context) <-chan slog.Record {
	return c.notifier.Subscribe(ctx)
}

// Close releases resources used by the collector.
func (c *LogCollector) Close() {
	c.notifier.Close()
}

// LogHandler is a slog.Handler feeding a LogCollector.
type LogHandler struct {
	collector *LogCollector
	level     slog.Leveler

	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*LogHandler)(nil)

// NewLogHandler creates a handler collecting records of at least level.
func NewLogHandler(collector *LogCollector, level slog.Leveler) *LogHandler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &LogHandler{
		collector: collector,
		level:     level,
	}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	// Handler attributes must come before the record attributes.
	collected := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	collected.AddAttrs(h.attrs...)

	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})
	for i := len(h.groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{slog.Group(h.groups[i], lo.ToAnySlice(attrs)...)}
	}
	collected.AddAttrs(attrs...)

	h.collector.Collect(collected)
	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		collector: h.collector,
		level:     h.level,
		attrs:     nestAttrs(h.groups, h.attrs, attrs),
		groups:    h.groups,
	}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &LogHandler{
		collector: h.collector,
		level:     h.level,
		attrs:     h.attrs,
		groups:    append(slices.Clip(h.groups), name),
	}
}

// nestAttrs adds attrs below the group path of existing.
func nestAttrs(groups []string, existing []slog.Attr, attrs []slog.Attr) []slog.Attr {
	existing = slices.Clone(existing)
	if len(groups) == 0 {
		return append(existing, attrs...)
	}

	for i, attr := range existing {
		if attr.Key == groups[0] && attr.Value.Kind() == slog.KindGroup {
			existing[i] = slog.Group(groups[0], lo.ToAnySlice(nestAttrs(groups[1:], attr.Value.Group(), attrs))...)
			return existing
		}
	}
	return append(existing, slog.Group(groups[0], lo.ToAnySlice(nestAttrs(groups[1:], nil, attrs))...))
}
