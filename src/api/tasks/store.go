package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/types"
)

// Filter narrows List. Empty fields are ignored; set fields are AND-ed.
type Filter struct {
	Status  types.TaskStatus
	AgentID string
}

// Store persists tasks. It has no update or delete: status transitions
// belong to the execution machinery.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Insert writes task in a single transaction and returns the stored row with
// its generated id and creation time.
func (s *Store) Insert(ctx context.Context, task types.Task) (*types.Task, error) {
	task.ID = uuid.NewString()
	now := s.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	var stored types.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		return tx.First(&stored, "id = ?", task.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// List returns owner's tasks, newest first.
func (s *Store) List(ctx context.Context, owner string, f Filter) ([]types.Task, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", owner)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	tasks := []types.Task{}
	if err := q.Order("created_at desc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
