package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/runreport/types"
)

// Format names a wire format for the job event stream.
type Format string

// Supported formats.
const (
	FormatJSONLines Format = "jsonl"
	FormatMsgpack   Format = "msgpack"
)

// ParseFormat parses a format name. Accepts "json" as an alias for jsonl.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "jsonl", "json", "ndjson":
		return FormatJSONLines, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown event format %q (valid: jsonl, msgpack)", s)
	}
}

// Decoder yields job events from a stream.
//
// Next returns io.EOF when the stream ends cleanly. Any other error is a
// *FrameError; callers skip non-fatal ones and stop on fatal ones.
type Decoder interface {
	Next() (*types.JobEvent, error)
}

// NewDecoder returns a decoder for the given format.
func NewDecoder(format Format, r io.Reader) (Decoder, error) {
	switch format {
	case FormatJSONLines:
		return NewLineDecoder(r), nil
	case FormatMsgpack:
		return NewFrameDecoder(r), nil
	default:
		return nil, fmt.Errorf("unsupported event format %q", format)
	}
}

// LineDecoder decodes newline-delimited JSON job events.
// Blank lines are skipped. Numbers are kept as json.Number so integer
// counters survive exactly.
type LineDecoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewLineDecoder creates a JSON lines decoder.
// A single line may be as large as a msgpack frame.
func NewLineDecoder(r io.Reader) *LineDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
	return &LineDecoder{scanner: scanner}
}

// Next reads and decodes the next non-blank line.
func (d *LineDecoder) Next() (*types.JobEvent, error) {
	for d.scanner.Scan() {
		d.line++
		raw := bytes.TrimSpace(d.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		return d.decodeLine(raw)
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("line exceeds maximum %d bytes", MaxFrameSize),
				Line: d.line + 1,
				Err:  err,
			}
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read line",
			Line: d.line + 1,
			Err:  err,
		}
	}
	return nil, io.EOF
}

func (d *LineDecoder) decodeLine(raw []byte) (*types.JobEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var event types.JobEvent
	if err := dec.Decode(&event); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode job event",
			Line: d.line,
			Err:  err,
		}
	}
	if event.Event == "" {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "job event has no event name",
			Line: d.line,
		}
	}
	return &event, nil
}
