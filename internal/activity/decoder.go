package activity

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// maxLineSize bounds one encoded event; syntax paths can be long.
const maxLineSize = 1 << 20

// ErrMalformed wraps an input line that is not a valid event.
var ErrMalformed = errors.New("activity: malformed event")

// Decoder reads newline-delimited JSON events, one per line.
type Decoder struct {
	sc     *bufio.Scanner
	line   int
	logger *slog.Logger
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Decoder{sc: sc, logger: logger}
}

// Next returns the event on the next non-blank line. A line that does not decode yields
// an error wrapping ErrMalformed; the following call continues with the next line.
// It returns io.EOF at the end of the stream.
func (d *Decoder) Next() (Event, error) {
	for d.sc.Scan() {
		d.line++
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, d.line, err)
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, fmt.Errorf("activity: read input: %w", err)
	}
	return Event{}, io.EOF
}

// Run passes each event to handle until EOF, a read error, or ctx is done.
// Malformed lines are logged and skipped.
func (d *Decoder) Run(ctx context.Context, handle func(Event)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := d.Next()
		switch {
		case err == nil:
			handle(ev)
		case errors.Is(err, ErrMalformed):
			d.logger.Warn("activity: skipping malformed event", "error", err)
		case errors.Is(err, io.EOF):
			d.logger.Debug("activity: input closed")
			return nil
		default:
			return err
		}
	}
}
