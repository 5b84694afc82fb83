package editor

import (
	"context"
	"time"

	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/optimistic"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// ToggleResult is the working state after an optimistic toggle.
type ToggleResult struct {
	Tasks   *model.TasksResponse `json:"tasks"`
	Outcome optimistic.Outcome   `json:"outcome"`
	Err     error                `json:"-"`
}

func tasksPath(guildID, characterID string) string {
	return "/guilds/" + escape(guildID) + "/characters/" + escape(characterID) + "/tasks"
}

// Tasks fetches a character's checklist and makes it the caller's working
// state for that character.
func (s *Service) Tasks(ctx context.Context, sess *upstream.Session, owner int64, guildID, characterID string) (*model.TasksResponse, error) {
	var tasks model.TasksResponse
	if err := s.progress.Get(ctx, sess, tasksPath(guildID, characterID), &tasks); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store(ctx, stateKey(owner, "tasks", guildID, characterID), &tasks); err != nil {
		s.logger.Warn("task state write failed", zap.Error(err))
	}
	return &tasks, nil
}

// ToggleTask marks a task done or not done in the working state right away,
// then posts the change. If the post fails only that task is put back.
func (s *Service) ToggleTask(ctx context.Context, sess *upstream.Session, owner int64, guildID, characterID string, toggle model.TaskToggle) (ToggleResult, error) {
	key := stateKey(owner, "tasks", guildID, characterID)
	if err := s.ensureTasks(ctx, sess, owner, guildID, characterID, key, toggle); err != nil {
		return ToggleResult{}, err
	}

	var (
		prevDone bool
		prevAt   *time.Time
	)
	res := optimistic.Run(ctx, optimistic.Op{
		Apply: func(ctx context.Context) error {
			return mutate(ctx, s, key, func(t *model.TasksResponse) (bool, error) {
				task := t.Task(toggle.TaskType, toggle.TaskID)
				if task == nil {
					return false, ErrNotFound
				}
				prevDone, prevAt = task.Done, task.CompletedAt
				task.Done = toggle.Completed
				task.CompletedAt = nil
				if toggle.Completed {
					at := s.now().UTC()
					task.CompletedAt = &at
				}
				return true, nil
			})
		},
		Commit: func(ctx context.Context) error {
			return s.progress.Post(ctx, sess, tasksPath(guildID, characterID), toggle, nil)
		},
		Revert: func(ctx context.Context) error {
			return mutate(ctx, s, key, func(t *model.TasksResponse) (bool, error) {
				task := t.Task(toggle.TaskType, toggle.TaskID)
				if task == nil {
					return false, nil
				}
				task.Done, task.CompletedAt = prevDone, prevAt
				return true, nil
			})
		},
	})
	if res.Outcome == optimistic.RolledBack {
		s.logger.Info("task toggle rolled back",
			zap.String("guild_id", guildID), zap.String("character_id", characterID),
			zap.String("task_id", toggle.TaskID), zap.Error(res.Err))
	}

	var tasks model.TasksResponse
	if _, err := s.load(ctx, key, &tasks); err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{Tasks: &tasks, Outcome: res.Outcome, Err: res.Err}, nil
}

// ensureTasks loads the checklist when the caller has no working state for
// it yet, or when it does not contain the toggled task.
func (s *Service) ensureTasks(ctx context.Context, sess *upstream.Session, owner int64, guildID, characterID, key string, toggle model.TaskToggle) error {
	var tasks model.TasksResponse
	ok, err := s.load(ctx, key, &tasks)
	if err != nil {
		return err
	}
	if ok && tasks.Task(toggle.TaskType, toggle.TaskID) != nil {
		return nil
	}
	fresh, err := s.Tasks(ctx, sess, owner, guildID, characterID)
	if err != nil {
		return err
	}
	if fresh.Task(toggle.TaskType, toggle.TaskID) == nil {
		return ErrNotFound
	}
	return nil
}
