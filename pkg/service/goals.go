package service

import (
	"context"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Service) ListGoals(ctx context.Context) (goals []domain.Goal, err error) {
	c := s.start(ctx, "get_goals", domain.EntityGoal, "")
	defer c.end(&err)

	goals, err = s.store.ListGoals(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(goals)))
	return goals, nil
}

func (s *Service) GetGoal(ctx context.Context, id string) (goal *domain.Goal, err error) {
	c := s.start(ctx, "get_goal", domain.EntityGoal, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.GetGoal(c.Ctx, id)
}

// ListGoalsByLifeArea returns the goals of one life area.
func (s *Service) ListGoalsByLifeArea(ctx context.Context, lifeAreaID string) (goals []domain.Goal, err error) {
	c := s.start(ctx, "get_goals_by_life_area", domain.EntityGoal, "")
	defer c.end(&err)

	if err := s.ensureExists(c.Ctx, domain.EntityLifeArea, lifeAreaID, "life_area_id"); err != nil {
		return nil, err
	}
	return s.store.ListGoalsByLifeArea(c.Ctx, lifeAreaID)
}

// CreateGoal creates an active goal with zero progress unless another
// status is requested.
func (s *Service) CreateGoal(ctx context.Context, req domain.CreateGoalRequest) (goal *domain.Goal, err error) {
	c := s.start(ctx, "create_goal", domain.EntityGoal, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureExists(c.Ctx, domain.EntityLifeArea, req.LifeAreaID, "life_area_id"); err != nil {
		return nil, err
	}

	now := s.timestamp()
	goal = &domain.Goal{
		ID:          newID(),
		LifeAreaID:  req.LifeAreaID,
		Name:        domain.TrimName(req.Name),
		Description: trimmed(req.Description),
		TargetDate:  req.TargetDate,
		Status:      domain.GoalStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Status != nil {
		setGoalStatus(goal, *req.Status, now)
	}

	if err := s.store.CreateGoal(c.Ctx, goal); err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityGoal, goal.ID).Info("goal created")
	s.publish(domain.EntityGoal, telemetry.ActionCreated, goal.ID, goal)
	s.refreshEntityCounts(c.Ctx)
	return goal, nil
}

// UpdateGoal applies the non-nil fields of req. Moving the goal requires the
// target life area to exist.
func (s *Service) UpdateGoal(ctx context.Context, id string, req domain.UpdateGoalRequest) (goal *domain.Goal, err error) {
	c := s.start(ctx, "update_goal", domain.EntityGoal, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	goal, err = s.store.GetGoal(c.Ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	if req.LifeAreaID != nil && *req.LifeAreaID != goal.LifeAreaID {
		if err := s.ensureExists(c.Ctx, domain.EntityLifeArea, *req.LifeAreaID, "life_area_id"); err != nil {
			return nil, err
		}
		goal.LifeAreaID = *req.LifeAreaID
	}
	if req.Name != nil {
		goal.Name = domain.TrimName(*req.Name)
	}
	if req.Description != nil {
		goal.Description = trimmed(req.Description)
	}
	if req.TargetDate != nil {
		goal.TargetDate = req.TargetDate
	}
	if req.Status != nil {
		setGoalStatus(goal, *req.Status, now)
	}
	if req.Progress != nil {
		goal.Progress = *req.Progress
	}
	goal.UpdatedAt = now

	if err := s.store.UpdateGoal(c.Ctx, goal); err != nil {
		return nil, err
	}

	s.publish(domain.EntityGoal, telemetry.ActionUpdated, goal.ID, goal)
	return goal, nil
}

// DeleteGoal deletes a goal that has no projects left.
func (s *Service) DeleteGoal(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_goal", domain.EntityGoal, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	if _, err := s.store.GetGoal(c.Ctx, id); err != nil {
		return err
	}
	if err := s.guardDelete(c.Ctx, domain.EntityGoal, id); err != nil {
		return err
	}

	if err := s.store.DeleteGoal(c.Ctx, id); err != nil {
		return err
	}

	c.Logger.WithEntity(domain.EntityGoal, id).Info("goal deleted")
	s.publish(domain.EntityGoal, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// UpdateGoalProgress recomputes a goal's progress from its projects.
func (s *Service) UpdateGoalProgress(ctx context.Context, id string) (goal *domain.Goal, err error) {
	c := s.start(ctx, "update_goal_progress", domain.EntityGoal, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if _, err := s.store.RecomputeGoalProgress(c.Ctx, id, s.timestamp()); err != nil {
		return nil, err
	}

	goal, err = s.store.GetGoal(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(domain.EntityGoal, telemetry.ActionUpdated, goal.ID, goal)
	return goal, nil
}

// setGoalStatus keeps completed_at in step with the status.
func setGoalStatus(goal *domain.Goal, status domain.GoalStatus, now time.Time) {
	if status == domain.GoalStatusCompleted {
		if goal.Status != domain.GoalStatusCompleted || goal.CompletedAt == nil {
			goal.CompletedAt = &now
		}
	} else {
		goal.CompletedAt = nil
	}
	goal.Status = status
}
