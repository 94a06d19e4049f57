package service

import (
	"context"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Service) ListTags(ctx context.Context) (tags []domain.Tag, err error) {
	c := s.start(ctx, "get_tags", domain.EntityTag, "")
	defer c.end(&err)

	return s.store.ListTags(c.Ctx)
}

// CreateTag creates a tag. Names are unique regardless of case.
func (s *Service) CreateTag(ctx context.Context, req domain.CreateTagRequest) (tag *domain.Tag, err error) {
	c := s.start(ctx, "create_tag", domain.EntityTag, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	tag = &domain.Tag{
		ID:        newID(),
		Name:      domain.TrimName(req.Name),
		Color:     req.Color,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.CreateTag(c.Ctx, tag); err != nil {
		return nil, err
	}

	s.publish(domain.EntityTag, telemetry.ActionCreated, tag.ID, tag)
	s.refreshEntityCounts(c.Ctx)
	return tag, nil
}

// DeleteTag removes a tag from every task and deletes it.
func (s *Service) DeleteTag(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_tag", domain.EntityTag, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	if err := s.store.DeleteTag(c.Ctx, id); err != nil {
		return err
	}

	s.publish(domain.EntityTag, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// TagTask attaches a tag by name, creating the tag on first use.
func (s *Service) TagTask(ctx context.Context, taskID, tagName string) (task *domain.Task, err error) {
	c := s.start(ctx, "tag_task", domain.EntityTask, taskID)
	defer c.end(&err)

	if err := domain.ValidateID(taskID); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(domain.CreateTagRequest{Name: tagName}); err != nil {
		return nil, err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		if _, err := tx.GetTask(c.Ctx, taskID); err != nil {
			return err
		}
		now := s.timestamp()
		tag, err := ensureTag(c.Ctx, tx, domain.TrimName(tagName), now)
		if err != nil {
			return err
		}
		if err := tx.TagTask(c.Ctx, taskID, tag.ID, now); err != nil {
			return err
		}
		task, err = tx.GetTask(c.Ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EntityTask, telemetry.ActionTagged, taskID, map[string]interface{}{"tag": tagName})
	return task, nil
}

// UntagTask detaches a tag by name. The tag itself is kept.
func (s *Service) UntagTask(ctx context.Context, taskID, tagName string) (task *domain.Task, err error) {
	c := s.start(ctx, "untag_task", domain.EntityTask, taskID)
	defer c.end(&err)

	if err := domain.ValidateID(taskID); err != nil {
		return nil, err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		if _, err := tx.GetTask(c.Ctx, taskID); err != nil {
			return err
		}
		tag, err := tx.GetTagByName(c.Ctx, domain.TrimName(tagName))
		if err != nil {
			return err
		}
		if err := tx.UntagTask(c.Ctx, taskID, tag.ID); err != nil {
			return err
		}
		task, err = tx.GetTask(c.Ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EntityTask, telemetry.ActionUntagged, taskID, map[string]interface{}{"tag": tagName})
	return task, nil
}

// ensureTag returns the tag called name, creating it when missing.
func ensureTag(ctx context.Context, tx stores.Store, name string, now time.Time) (*domain.Tag, error) {
	tag, err := tx.GetTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	tag = &domain.Tag{ID: newID(), Name: name, CreatedAt: now}
	if err := tx.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}
