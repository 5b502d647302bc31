package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"contest-platform/internal/apperr"
)

// ContestEndedEvent ends one contest, or sweeps every overdue contest when
// ContestID is empty. IsEnded defaults to true.
type ContestEndedEvent struct {
	ContestID string `json:"contestId"`
	IsEnded   *bool  `json:"isEnded,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ContestEnder is the slice of the contest service the handlers drive.
type ContestEnder interface {
	SetEnded(ctx context.Context, id string, ended bool) error
	SweepEnded(ctx context.Context) (int, error)
}

type Handlers struct {
	contests ContestEnder
	logger   zerolog.Logger
}

func NewHandlers(contests ContestEnder, logger zerolog.Logger) *Handlers {
	return &Handlers{
		contests: contests,
		logger:   logger.With().Str("component", "kafka-handlers").Logger(),
	}
}

func (h *Handlers) HandleContestEnded(ctx context.Context, msg kafka.Message) error {
	var event ContestEndedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal contest.ended event")
		return err
	}

	if event.ContestID == "" {
		n, err := h.contests.SweepEnded(ctx)
		h.logger.Info().Int("ended", n).Msg("Processed contest.ended sweep")
		return err
	}

	ended := true
	if event.IsEnded != nil {
		ended = *event.IsEnded
	}

	h.logger.Info().
		Str("contestId", event.ContestID).
		Bool("isEnded", ended).
		Msg("Processing contest.ended")

	err := h.contests.SetEnded(ctx, event.ContestID, ended)
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
		// Deleted or malformed contests cannot succeed on redelivery.
		h.logger.Warn().Err(err).Str("contestId", event.ContestID).Msg("Dropping contest.ended event")
		return nil
	}
	return err
}

func (h *Handlers) RegisterAll(consumer *Consumer, contestEndedTopic string) {
	consumer.RegisterHandler(contestEndedTopic, h.HandleContestEnded)
}
