package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/metrics"
	"github.com/pithecene-io/runreport/report"
	"github.com/pithecene-io/runreport/types"
)

// IngestionError classifies ingestion errors for outcome determination.
type IngestionError struct {
	// Kind indicates whether the stream broke or the run was canceled.
	Kind IngestionErrorKind
	// Err is the underlying error.
	Err error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorStream indicates a fatal framing error before the stats event.
	IngestionErrorStream IngestionErrorKind = iota
	// IngestionErrorCanceled indicates context cancellation.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return e.Err.Error()
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorCanceled
	}
	return false
}

// IsStreamError returns true if the error is a stream/frame error.
func IsStreamError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorStream
	}
	return false
}

// IngestionEngine feeds a job event stream into a Callback.
//   - Events are handled in stream order
//   - Undecodable records and malformed events are skipped with a warning
//   - Invalid framing is fatal (no resync)
//   - First stats event wins; later ones are ignored
type IngestionEngine struct {
	decoder    ipc.Decoder
	callback   *Callback
	state      *report.RunState
	logger     *log.Logger
	collector  *metrics.Collector
	eventCount int64

	terminalSeen bool
	stats        *types.RunStats
}

// NewIngestionEngine creates a new ingestion engine.
func NewIngestionEngine(
	decoder ipc.Decoder,
	callback *Callback,
	state *report.RunState,
	logger *log.Logger,
	collector *metrics.Collector,
) *IngestionEngine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &IngestionEngine{
		decoder:   decoder,
		callback:  callback,
		state:     state,
		logger:    logger,
		collector: collector,
	}
}

// Run runs the ingestion loop until EOF or a fatal error.
// Returns:
//   - nil: stream ended cleanly (EOF)
//   - *IngestionError with Kind=IngestionErrorStream: fatal framing error
//   - *IngestionError with Kind=IngestionErrorCanceled: context canceled
func (e *IngestionEngine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestionError{
				Kind: IngestionErrorCanceled,
				Err:  ctx.Err(),
			}
		default:
		}

		job, err := e.decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if !ipc.IsFatalFrameError(err) {
				e.collector.IncDecodeErrors()
				e.logger.Warn("skipping undecodable event", map[string]any{
					"error": err.Error(),
				})
				continue
			}

			// The writer going away after the stats event is normal.
			if e.terminalSeen {
				e.logger.Debug("stream closed after stats event", map[string]any{
					"error": err.Error(),
				})
				return nil
			}

			e.collector.IncDecodeErrors()
			e.logger.Error("frame error", map[string]any{
				"error": err.Error(),
			})
			return &IngestionError{
				Kind: IngestionErrorStream,
				Err:  fmt.Errorf("frame error: %w", err),
			}
		}

		e.eventCount++
		e.collector.IncEventsReceived()
		e.processEvent(ctx, job)
	}
}

func (e *IngestionEngine) processEvent(ctx context.Context, job *types.JobEvent) {
	ev, ok, err := job.ToEvent()
	if err != nil {
		e.collector.IncDecodeErrors()
		e.logger.Warn("skipping malformed event", map[string]any{
			"event":   job.Event,
			"counter": job.Counter,
			"error":   err.Error(),
		})
		return
	}
	if !ok {
		e.collector.IncEventsIgnored()
		return
	}

	if ev.Kind.IsTerminal() {
		if e.terminalSeen {
			e.collector.IncEventsIgnored()
			e.logger.Warn("ignoring duplicate stats event", map[string]any{
				"counter": job.Counter,
			})
			return
		}
		e.terminalSeen = true
		e.stats = ev.Stats
		e.logger.Info("stats event received", map[string]any{
			"counter": job.Counter,
			"hosts":   len(ev.Stats.HostNames()),
		})
	}

	if err := e.callback.Handle(ctx, e.state, ev); err != nil {
		e.logger.Warn("event not handled", map[string]any{
			"event": job.Event,
			"error": err.Error(),
		})
	}
}

// HasTerminal returns true if a stats event has been handled.
func (e *IngestionEngine) HasTerminal() bool {
	return e.terminalSeen
}

// Stats returns the stats carried by the first stats event, or nil.
func (e *IngestionEngine) Stats() *types.RunStats {
	return e.stats
}

// EventCount returns the number of decoded job events.
func (e *IngestionEngine) EventCount() int64 {
	return e.eventCount
}
