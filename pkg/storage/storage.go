// Package storage persists conversation state between turns. Every store
// keeps the JSON form of dialog.ConversationState, so a plan suspended in
// one process can be resumed by another.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicetyped/adaptive/pkg/dialog"
)

// Store is a dialog.StateStore that can also evict idle conversations.
type Store interface {
	dialog.StateStore
	// DeleteIdle removes conversations last used before cutoff and returns
	// how many were removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

func encode(state *dialog.ConversationState) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode conversation %q: %w", state.ConversationID, err)
	}
	return raw, nil
}

func decode(raw []byte) (*dialog.ConversationState, error) {
	var state dialog.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &state, nil
}
