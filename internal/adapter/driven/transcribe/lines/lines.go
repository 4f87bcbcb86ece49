// Package lines is a Transcriber fed by text: every non-empty line read
// from the source is one recognized utterance.
package lines

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Transcriber reads utterances from whatever Open returns. Each Run opens a
// fresh reader, so a named pipe or a growing file keeps feeding a restarted
// engine.
type Transcriber struct {
	Open func() (io.ReadCloser, error)
	// Pace waits between utterances, roughly how long someone takes to say them.
	Pace time.Duration
}

// FromString serves the same text on every run.
func FromString(text string) *Transcriber {
	return &Transcriber{Open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(text)), nil
	}}
}

// Run emits lines until the source is exhausted, which counts as the engine
// stopping on its own.
func (t *Transcriber) Run(ctx context.Context, emit func(text string)) error {
	r, err := t.Open()
	if err != nil {
		return fmt.Errorf("open transcript source: %w", err)
	}
	defer r.Close()

	// Unblocks the scanner when ctx ends first.
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer stop()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		emit(line)
		if t.Pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.Pace):
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return sc.Err()
}
