// Package messages publishes local messages as one JSON document per line.
// Normal messages go to stdout while logs go to stderr or the configured log file,
// so a supervisor can consume the stream separately.
package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Publisher serializes writes so concurrent messages never interleave.
type Publisher struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPublisher writes messages to out.
func NewPublisher(out io.Writer) *Publisher {
	return &Publisher{out: out}
}

// PublishRaw writes an already encoded JSON document, compacted onto one line.
func (p *Publisher) PublishRaw(doc []byte) error {
	if p == nil || p.out == nil {
		return errors.New("publisher has no output")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	buf.WriteByte('\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.out.Write(buf.Bytes())
	return err
}

// Publish encodes v as JSON and writes it.
func (p *Publisher) Publish(v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.PublishRaw(doc)
}
