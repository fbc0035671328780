package sync

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/store"
)

// Checkpoint keys.
const (
	KeyLastSnapshot = "last_snapshot_at"
)

// Checkpoints manages mirror checkpoints in sync_state.
type Checkpoints struct {
	db     *store.DB
	logger *zap.Logger
}

// NewCheckpoints creates a checkpoint helper.
func NewCheckpoints(db *store.DB, logger *zap.Logger) *Checkpoints {
	return &Checkpoints{db: db, logger: logger}
}

// MarkSnapshot records when the last inbox snapshot was mirrored.
func (c *Checkpoints) MarkSnapshot(at time.Time) error {
	return c.db.SetState(KeyLastSnapshot, strconv.FormatInt(at.UnixMilli(), 10))
}

// LastSnapshot returns when the mirrored inbox was last replaced, or the
// zero time if never.
func (c *Checkpoints) LastSnapshot() (time.Time, error) {
	v, err := c.db.GetState(KeyLastSnapshot)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		c.logger.Warn("ignoring corrupt checkpoint", zap.String("key", KeyLastSnapshot), zap.String("value", v))
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
