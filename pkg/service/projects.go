package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/policy"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Service) ListProjects(ctx context.Context) (projects []domain.Project, err error) {
	c := s.start(ctx, "get_projects", domain.EntityProject, "")
	defer c.end(&err)

	projects, err = s.store.ListProjects(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(projects)))
	return projects, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (project *domain.Project, err error) {
	c := s.start(ctx, "get_project", domain.EntityProject, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.GetProject(c.Ctx, id)
}

func (s *Service) ListProjectsByGoal(ctx context.Context, goalID string) (projects []domain.Project, err error) {
	c := s.start(ctx, "get_projects_by_goal", domain.EntityProject, "")
	defer c.end(&err)

	if err := s.ensureExists(c.Ctx, domain.EntityGoal, goalID, "goal_id"); err != nil {
		return nil, err
	}
	return s.store.ListProjectsByGoal(c.Ctx, goalID)
}

// CreateProject creates a project under an existing goal. New projects start
// in planning.
func (s *Service) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (project *domain.Project, err error) {
	c := s.start(ctx, "create_project", domain.EntityProject, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureExists(c.Ctx, domain.EntityGoal, req.GoalID, "goal_id"); err != nil {
		return nil, err
	}

	now := s.timestamp()
	project = &domain.Project{
		ID:          newID(),
		GoalID:      req.GoalID,
		Name:        domain.TrimName(req.Name),
		Description: trimmed(req.Description),
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		Status:      domain.ProjectStatusPlanning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Status != nil {
		setProjectStatus(project, *req.Status, now)
	}

	if err := s.store.CreateProject(c.Ctx, project); err != nil {
		return nil, err
	}
	// A new empty project pulls the goal average down.
	if _, err := s.store.RecomputeGoalProgress(c.Ctx, project.GoalID, now); err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityProject, project.ID).Info("project created")
	s.publish(domain.EntityProject, telemetry.ActionCreated, project.ID, project)
	s.refreshEntityCounts(c.Ctx)
	return project, nil
}

// UpdateProject applies the non-nil fields of req. The merged start and due
// dates must stay ordered.
func (s *Service) UpdateProject(ctx context.Context, id string, req domain.UpdateProjectRequest) (project *domain.Project, err error) {
	c := s.start(ctx, "update_project", domain.EntityProject, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	project, err = s.store.GetProject(c.Ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	oldGoalID := project.GoalID
	if req.GoalID != nil && *req.GoalID != project.GoalID {
		if err := s.ensureExists(c.Ctx, domain.EntityGoal, *req.GoalID, "goal_id"); err != nil {
			return nil, err
		}
		project.GoalID = *req.GoalID
	}
	if req.Name != nil {
		project.Name = domain.TrimName(*req.Name)
	}
	if req.Description != nil {
		project.Description = trimmed(req.Description)
	}
	if req.StartDate != nil {
		project.StartDate = req.StartDate
	}
	if req.DueDate != nil {
		project.DueDate = req.DueDate
	}
	if err := domain.ValidateProjectDates(project.StartDate, project.DueDate); err != nil {
		return nil, err
	}
	if req.Status != nil {
		setProjectStatus(project, *req.Status, now)
	}
	if req.Progress != nil {
		project.Progress = *req.Progress
	}
	project.UpdatedAt = now

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		if err := tx.UpdateProject(c.Ctx, project); err != nil {
			return err
		}
		for _, goalID := range uniqueIDs(oldGoalID, project.GoalID) {
			if _, err := tx.RecomputeGoalProgress(c.Ctx, goalID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EntityProject, telemetry.ActionUpdated, project.ID, project)
	return project, nil
}

// DeleteProject deletes a project that has no tasks left.
func (s *Service) DeleteProject(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_project", domain.EntityProject, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	project, err := s.store.GetProject(c.Ctx, id)
	if err != nil {
		return err
	}
	if err := s.guardDelete(c.Ctx, domain.EntityProject, id); err != nil {
		return err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		if err := tx.DeleteProject(c.Ctx, id); err != nil {
			return err
		}
		_, err := tx.RecomputeGoalProgress(c.Ctx, project.GoalID, s.timestamp())
		return err
	})
	if err != nil {
		return err
	}

	c.Logger.WithEntity(domain.EntityProject, id).Info("project deleted")
	s.publish(domain.EntityProject, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// UpdateProjectProgress recomputes a project's progress from its tasks and
// propagates it to the goal.
func (s *Service) UpdateProjectProgress(ctx context.Context, id string) (project *domain.Project, err error) {
	c := s.start(ctx, "update_project_progress", domain.EntityProject, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if _, err := s.store.RecomputeProjectProgress(c.Ctx, id, s.timestamp()); err != nil {
		return nil, err
	}

	project, err = s.store.GetProject(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(domain.EntityProject, telemetry.ActionUpdated, project.ID, project)
	return project, nil
}

// ArchiveProject archives a project together with its tasks and notes.
func (s *Service) ArchiveProject(ctx context.Context, id string) (result *domain.TransactionResult, err error) {
	c := s.start(ctx, "archive_project", domain.EntityProject, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	if project.ArchivedAt != nil {
		return nil, domain.NewBadRequestError("Project is already archived").WithEntity(domain.EntityProject).WithID(id)
	}
	if err := s.guard(c.Ctx, policy.GuardInput{
		Operation:  policy.OpArchive,
		EntityType: domain.EntityProject,
		EntityID:   id,
	}); err != nil {
		return nil, err
	}

	now := s.timestamp()
	var archived int64
	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		n, err := tx.ArchiveProjectCascade(c.Ctx, id, now)
		if err != nil {
			return err
		}
		archived = n
		_, err = tx.RecomputeGoalProgress(c.Ctx, project.GoalID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityProject, id).WithField("archived", archived).Info("project archived")
	s.publish(domain.EntityProject, telemetry.ActionArchived, id, map[string]interface{}{"archived": archived})
	s.refreshEntityCounts(c.Ctx)

	return &domain.TransactionResult{
		Success:      true,
		Message:      fmt.Sprintf("Archived project %q and %d related items", project.Name, archived-1),
		AffectedRows: archived,
	}, nil
}

func setProjectStatus(project *domain.Project, status domain.ProjectStatus, now time.Time) {
	if status == domain.ProjectStatusCompleted {
		if project.Status != domain.ProjectStatusCompleted || project.CompletedAt == nil {
			project.CompletedAt = &now
		}
	} else {
		project.CompletedAt = nil
	}
	project.Status = status
}

// uniqueIDs drops empty and repeated ids, keeping order.
func uniqueIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
