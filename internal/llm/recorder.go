package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/pkg/logger"
	"github.com/faq-agent/backend/pkg/utils"
)

// ErrNoRecording reports a replay miss: the store has no completion for the
// requested prompt and live calls are disabled.
var ErrNoRecording = errors.New("no recorded completion for prompt")

// CompletionStore persists completions keyed by prompt hash.
type CompletionStore interface {
	GetCompletion(ctx context.Context, key string) (*CompletionResponse, bool, error)
	SetCompletion(ctx context.Context, key string, resp *CompletionResponse) error
}

// Mode selects how the recorder treats the store.
type Mode string

const (
	// ModeRecord calls the live model on a miss and saves the result.
	ModeRecord Mode = "record"
	// ModeReplay never calls the live model; a miss is an error. Runs in
	// this mode are fully deterministic.
	ModeReplay Mode = "replay"
)

// RecordingCompleter wraps a Completer with prompt-keyed record/replay so the
// same inputs always yield the same outputs across runs.
type RecordingCompleter struct {
	inner Completer
	store CompletionStore
	mode  Mode
}

func NewRecordingCompleter(inner Completer, store CompletionStore, mode Mode) *RecordingCompleter {
	return &RecordingCompleter{inner: inner, store: store, mode: mode}
}

func (r *RecordingCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	key := promptKey(req)

	cached, ok, err := r.store.GetCompletion(ctx, key)
	if err != nil {
		logger.Warn("Completion store lookup failed", zap.Error(err))
	}
	if ok {
		logger.Debug("Replaying recorded completion", zap.String("key", key))
		return cached, nil
	}

	if r.mode == ModeReplay {
		return nil, fmt.Errorf("%w: key %s", ErrNoRecording, key)
	}

	resp, err := r.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.store.SetCompletion(ctx, key, resp); err != nil {
		logger.Warn("Failed to record completion", zap.String("key", key), zap.Error(err))
	}

	return resp, nil
}

func promptKey(req CompletionRequest) string {
	return utils.HashString(fmt.Sprintf("%s\x00%s\x00%.2f\x00%d",
		req.SystemPrompt, req.UserPrompt, req.Temperature, req.MaxTokens))
}
