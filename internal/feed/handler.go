package feed

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/reconcile"
)

// Message statuses recorded per source.
const (
	StatusApplied   = "applied"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
	StatusMalformed = "malformed"
	StatusError     = "error"
)

// Submitter applies one execution. Implemented by *reconcile.Service.
type Submitter interface {
	Submit(ctx context.Context, e *domain.Execution) (*reconcile.Outcome, error)
}

// ClosedFunc is called for every position an execution closed.
type ClosedFunc func(ctx context.Context, p *domain.Position)

// Handler decodes payloads and submits their executions.
type Handler struct {
	submitter Submitter
	onClosed  ClosedFunc
	log       zerolog.Logger
}

// NewHandler creates a Handler. onClosed may be nil.
func NewHandler(submitter Submitter, onClosed ClosedFunc, log zerolog.Logger) *Handler {
	return &Handler{
		submitter: submitter,
		onClosed:  onClosed,
		log:       log.With().Str("component", "feed").Logger(),
	}
}

// Handle processes one payload from source. Malformed payloads and rejected
// executions are logged and dropped. The returned error means the payload
// was not fully applied and should be redelivered.
func (h *Handler) Handle(ctx context.Context, source string, payload []byte) error {
	execs, err := Decode(payload)
	if err != nil {
		observability.RecordFeedMessage(source, StatusMalformed)
		h.log.Warn().Err(err).Str("source", source).Int("bytes", len(payload)).Msg("dropping malformed message")
		return nil
	}

	for _, e := range execs {
		if err := h.apply(ctx, source, e); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) apply(ctx context.Context, source string, e *domain.Execution) error {
	out, err := h.submitter.Submit(ctx, e)
	switch {
	case errors.Is(err, domain.ErrInvalidExecution):
		observability.RecordFeedMessage(source, StatusRejected)
		return nil
	case err != nil:
		observability.RecordFeedMessage(source, StatusError)
		h.log.Error().Err(err).Str("source", source).Str("execution_id", e.ExecutionID).Msg("execution not applied")
		return err
	case out.Duplicate:
		observability.RecordFeedMessage(source, StatusDuplicate)
		return nil
	}

	observability.RecordFeedMessage(source, StatusApplied)
	if h.onClosed != nil {
		for _, p := range out.Closed() {
			h.onClosed(ctx, p)
		}
	}
	return nil
}
