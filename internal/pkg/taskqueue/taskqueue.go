// Package taskqueue records pipeline runs in Redis so callers can look up
// their outcome after the fact.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redisc "github.com/mx-space/capture/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// TaskStatus represents the lifecycle state of a run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ErrNotFound is returned for unknown or expired runs.
var ErrNotFound = errors.New("task not found")

// Task is one recorded run.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	GroupKey  string          `json:"group_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (t *Task) Finished() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

const (
	keyPrefix = "capture:task:"
	keyIndex  = "capture:tasks:index"  // sorted set: score=created_at, member=task_id
	keyGroup  = "capture:tasks:group:" // sorted set per group
	taskTTL   = 7 * 24 * time.Hour     // tasks expire after 7 days
)

// Service manages the Redis-backed run log.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue records a new pending run.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, groupKey string) (*Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		GroupKey:  groupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	score := float64(task.CreatedAt.UnixMilli())
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{Score: score, Member: task.ID})
	if groupKey != "" {
		pipe.ZAdd(ctx, keyGroup+groupKey, redis.Z{Score: score, Member: task.ID})
		pipe.Expire(ctx, keyGroup+groupKey, taskTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

// GetByID retrieves a run by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateStatus sets a run's status and optional result/error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status
	task.UpdatedAt = s.now()
	task.Error = errMsg

	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return err
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(id), data, taskTTL).Err()
}

// ListByGroup returns the runs of one group, newest first.
func (s *Service) ListByGroup(ctx context.Context, groupKey string, page, size int) ([]*Task, int64, error) {
	key := keyGroup + groupKey
	total, err := s.rc.Raw().ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}

	start := int64((page - 1) * size)
	if start >= total {
		return []*Task{}, total, nil
	}
	ids, err := s.rc.Raw().ZRevRange(ctx, key, start, start+int64(size)-1).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, total, nil
}

// DeleteFinished removes completed and failed runs created before beforeMS
// (all of them when beforeMS is 0).
func (s *Service) DeleteFinished(ctx context.Context, beforeMS int64) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if err != nil || !task.Finished() {
			continue
		}
		if beforeMS > 0 && task.CreatedAt.UnixMilli() >= beforeMS {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		if task.GroupKey != "" {
			pipe.ZRem(ctx, keyGroup+task.GroupKey, id)
		}
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}
