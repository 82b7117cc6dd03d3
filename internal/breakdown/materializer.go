package breakdown

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

// Materializer turns validated subtask drafts into persisted subtasks of
// the parent task. The whole batch is written in one transaction: either
// every draft becomes a subtask or none do.
type Materializer struct {
	db *store.DB
}

// NewMaterializer creates a Materializer backed by the given database.
func NewMaterializer(db *store.DB) *Materializer {
	return &Materializer{db: db}
}

// Materialize persists the drafts as subtasks of taskID and returns the
// number created. Order starts at the task's current max order plus one
// and follows the draft sequence with no gaps, so fresh subtasks never
// collide with pre-existing ones. The context bounds the transaction;
// the executor passes its per-attempt deadline through here.
func (m *Materializer) Materialize(ctx context.Context, taskID string, drafts []models.SubtaskDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	now := time.Now()
	err := m.db.Transaction(ctx, func(tx *sql.Tx) error {
		maxOrder, err := store.MaxSubtaskOrderTx(ctx, tx, taskID)
		if err != nil {
			return err
		}

		for i, d := range drafts {
			subtask := &models.Subtask{
				ID:             uuid.New().String(),
				TaskID:         taskID,
				Title:          d.Title,
				Description:    d.Description,
				Status:         models.SubtaskStatusPending,
				Order:          maxOrder + 1 + i,
				EstimatedHours: d.EstimatedHours,
				GeneratedByAI:  true,
				CreatedAt:      now,
			}
			if err := store.CreateSubtaskTx(ctx, tx, subtask); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(drafts), nil
}
