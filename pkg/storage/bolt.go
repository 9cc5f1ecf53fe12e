package storage

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/voicetyped/adaptive/pkg/dialog"
)

var conversationsBucket = []byte("conversations")

// Bolt stores conversations in a single bbolt file, one key per
// conversation.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close releases the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Load(_ context.Context, conversationID string) (*dialog.ConversationState, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(conversationsBucket).Get([]byte(conversationID)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return decode(raw)
}

func (b *Bolt) Save(_ context.Context, state *dialog.ConversationState) error {
	raw, err := encode(state)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Put([]byte(state.ConversationID), raw)
	})
}

func (b *Bolt) Delete(_ context.Context, conversationID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(conversationID))
	})
}

func (b *Bolt) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		var idle [][]byte
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			state, err := decode(v)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", k, err)
			}
			if state.LastAccess.Before(cutoff) {
				idle = append(idle, append([]byte(nil), k...))
			}
		}
		for _, k := range idle {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		n = len(idle)
		return nil
	})
	return n, err
}
