package trace

import (
	"bytes"
	"encoding/json"
	"math"
)

// limitedBuffer keeps up to limit bytes and silently discards the rest.
type limitedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.Len()
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.truncated = true
		_, err := b.Buffer.Write(p[:remaining])
		return len(p), err
	}
	return b.Buffer.Write(p)
}

// Payload is the JSON of a traced frame, pretty printed and cut at a size limit.
type Payload struct {
	data      []byte
	size      int
	truncated bool
}

// NewPayload formats raw as indented JSON keeping at most limit bytes.
// A limit of 0 keeps everything.
func NewPayload(raw []byte, limit int) *Payload {
	if limit <= 0 {
		limit = math.MaxInt
	}
	buf := &limitedBuffer{limit: limit}

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		_, _ = buf.Write(raw)
	} else {
		_, _ = indented.WriteTo(buf)
	}

	return &Payload{
		data:      buf.Bytes(),
		size:      len(raw),
		truncated: buf.truncated,
	}
}

// Bytes returns the kept bytes.
func (p *Payload) Bytes() []byte {
	return p.data
}

func (p *Payload) String() string {
	return string(p.data)
}

// Size returns the size of the frame on the wire.
func (p *Payload) Size() int {
	return p.size
}

// IsTruncated reports whether bytes were dropped.
func (p *Payload) IsTruncated() bool {
	return p.truncated
}
