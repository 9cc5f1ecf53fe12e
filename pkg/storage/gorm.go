package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/voicetyped/adaptive/pkg/dialog"
)

// ConversationRecord is the database row of one conversation.
type ConversationRecord struct {
	data.BaseModel

	ConversationID string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"conversation_id"`
	State          []byte    `gorm:"type:jsonb;not null"                    json:"state"`
	TurnCount      int       `gorm:"default:0"                              json:"turn_count"`
	LastAccess     time.Time `gorm:"index"                                  json:"last_access"`
}

func (ConversationRecord) TableName() string { return "conversations" }

// Gorm stores conversations in the service datastore.
type Gorm struct {
	pool pool.Pool
}

// NewGorm creates a store over the datastore pool.
func NewGorm(pool pool.Pool) *Gorm {
	return &Gorm{pool: pool}
}

func (g *Gorm) db(ctx context.Context, readOnly bool) *gorm.DB {
	return g.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the conversations table.
func (g *Gorm) Migrate(ctx context.Context) error {
	return g.db(ctx, false).AutoMigrate(&ConversationRecord{})
}

func (g *Gorm) Load(ctx context.Context, conversationID string) (*dialog.ConversationState, error) {
	var rec ConversationRecord
	err := g.db(ctx, true).Where("conversation_id = ?", conversationID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(rec.State)
}

func (g *Gorm) Save(ctx context.Context, state *dialog.ConversationState) error {
	raw, err := encode(state)
	if err != nil {
		return err
	}
	db := g.db(ctx, false)

	var rec ConversationRecord
	err = db.Where("conversation_id = ?", state.ConversationID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = ConversationRecord{
			ConversationID: state.ConversationID,
			State:          raw,
			TurnCount:      state.TurnCount,
			LastAccess:     state.LastAccess,
		}
		return db.Create(&rec).Error
	case err != nil:
		return err
	}
	rec.State = raw
	rec.TurnCount = state.TurnCount
	rec.LastAccess = state.LastAccess
	return db.Save(&rec).Error
}

func (g *Gorm) Delete(ctx context.Context, conversationID string) error {
	return g.db(ctx, false).Where("conversation_id = ?", conversationID).Delete(&ConversationRecord{}).Error
}

func (g *Gorm) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res := g.db(ctx, false).Where("last_access < ?", cutoff).Delete(&ConversationRecord{})
	return int(res.RowsAffected), res.Error
}
