package service

import (
	"context"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// ListLifeAreas returns every non-archived life area in display order.
func (s *Service) ListLifeAreas(ctx context.Context) (areas []domain.LifeArea, err error) {
	c := s.start(ctx, "get_life_areas", domain.EntityLifeArea, "")
	defer c.end(&err)

	areas, err = s.store.ListLifeAreas(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(areas)))
	return areas, nil
}

// GetLifeArea returns one life area.
func (s *Service) GetLifeArea(ctx context.Context, id string) (area *domain.LifeArea, err error) {
	c := s.start(ctx, "get_life_area", domain.EntityLifeArea, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.GetLifeArea(c.Ctx, id)
}

// CreateLifeArea creates a life area at the end of the ordering.
func (s *Service) CreateLifeArea(ctx context.Context, req domain.CreateLifeAreaRequest) (area *domain.LifeArea, err error) {
	c := s.start(ctx, "create_life_area", domain.EntityLifeArea, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	now := s.timestamp()
	area = &domain.LifeArea{
		ID:          newID(),
		Name:        domain.TrimName(req.Name),
		Description: trimmed(req.Description),
		Color:       req.Color,
		Icon:        req.Icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateLifeArea(c.Ctx, area); err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityLifeArea, area.ID).Info("life area created")
	s.publish(domain.EntityLifeArea, telemetry.ActionCreated, area.ID, area)
	s.refreshEntityCounts(c.Ctx)
	return area, nil
}

// UpdateLifeArea applies the non-nil fields of req.
func (s *Service) UpdateLifeArea(ctx context.Context, id string, req domain.UpdateLifeAreaRequest) (area *domain.LifeArea, err error) {
	c := s.start(ctx, "update_life_area", domain.EntityLifeArea, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	area, err = s.store.GetLifeArea(c.Ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		area.Name = domain.TrimName(*req.Name)
	}
	if req.Description != nil {
		area.Description = trimmed(req.Description)
	}
	if req.Color != nil {
		area.Color = req.Color
	}
	if req.Icon != nil {
		area.Icon = req.Icon
	}
	if req.SortOrder != nil {
		area.SortOrder = *req.SortOrder
	}
	area.UpdatedAt = s.timestamp()

	if err := s.store.UpdateLifeArea(c.Ctx, area); err != nil {
		return nil, err
	}

	s.publish(domain.EntityLifeArea, telemetry.ActionUpdated, area.ID, area)
	return area, nil
}

// DeleteLifeArea deletes a life area that has no goals left.
func (s *Service) DeleteLifeArea(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_life_area", domain.EntityLifeArea, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	if _, err := s.store.GetLifeArea(c.Ctx, id); err != nil {
		return err
	}
	if err := s.guardDelete(c.Ctx, domain.EntityLifeArea, id); err != nil {
		return err
	}

	if err := s.store.DeleteLifeArea(c.Ctx, id); err != nil {
		return err
	}

	c.Logger.WithEntity(domain.EntityLifeArea, id).Info("life area deleted")
	s.publish(domain.EntityLifeArea, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// ReorderLifeAreas sets the display order to the order of ids.
func (s *Service) ReorderLifeAreas(ctx context.Context, ids []string) (areas []domain.LifeArea, err error) {
	c := s.start(ctx, "reorder_life_areas", domain.EntityLifeArea, "")
	defer c.end(&err)

	if len(ids) == 0 {
		return nil, domain.NewValidationError("ids is required").WithDetail("field", "ids")
	}
	if err := domain.ValidateIDs(ids); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, domain.NewValidationError("ids must not contain duplicates").WithDetail("field", "ids")
		}
		seen[id] = true
	}

	if err := s.store.ReorderLifeAreas(c.Ctx, ids, s.timestamp()); err != nil {
		return nil, err
	}

	s.publish(domain.EntityLifeArea, telemetry.ActionReordered, "", ids)
	return s.store.ListLifeAreas(c.Ctx)
}
