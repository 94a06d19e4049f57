package service

import (
	"context"
	"strings"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Service) ListNotes(ctx context.Context) (notes []domain.Note, err error) {
	c := s.start(ctx, "get_notes", domain.EntityNote, "")
	defer c.end(&err)

	notes, err = s.store.ListNotes(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(notes)))
	return notes, nil
}

func (s *Service) GetNote(ctx context.Context, id string) (note *domain.Note, err error) {
	c := s.start(ctx, "get_note", domain.EntityNote, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.GetNote(c.Ctx, id)
}

// ListNotesByParent returns the notes attached to one entity of the
// hierarchy.
func (s *Service) ListNotesByParent(ctx context.Context, parent domain.EntityType, parentID string) (notes []domain.Note, err error) {
	c := s.start(ctx, "get_notes_by_parent", domain.EntityNote, "")
	defer c.end(&err)

	if err := s.ensureExists(c.Ctx, parent, parentID, string(parent)+"_id"); err != nil {
		return nil, err
	}
	return s.store.ListNotesByParent(c.Ctx, parent, parentID)
}

// CreateNote creates a note, optionally attached to one existing entity.
func (s *Service) CreateNote(ctx context.Context, req domain.CreateNoteRequest) (note *domain.Note, err error) {
	c := s.start(ctx, "create_note", domain.EntityNote, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if parent, parentID, ok := req.Parent(); ok {
		if err := s.ensureExists(c.Ctx, parent, parentID, string(parent)+"_id"); err != nil {
			return nil, err
		}
	}

	now := s.timestamp()
	note = &domain.Note{
		ID:         newID(),
		TaskID:     req.TaskID,
		ProjectID:  req.ProjectID,
		GoalID:     req.GoalID,
		LifeAreaID: req.LifeAreaID,
		Title:      domain.TrimName(req.Title),
		Content:    req.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateNote(c.Ctx, note); err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityNote, note.ID).Info("note created")
	s.publish(domain.EntityNote, telemetry.ActionCreated, note.ID, note)
	s.refreshEntityCounts(c.Ctx)
	return note, nil
}

func (s *Service) UpdateNote(ctx context.Context, id string, req domain.UpdateNoteRequest) (note *domain.Note, err error) {
	c := s.start(ctx, "update_note", domain.EntityNote, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	note, err = s.store.GetNote(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		note.Title = domain.TrimName(*req.Title)
	}
	if req.Content != nil {
		note.Content = *req.Content
	}
	note.UpdatedAt = s.timestamp()

	if err := s.store.UpdateNote(c.Ctx, note); err != nil {
		return nil, err
	}

	s.publish(domain.EntityNote, telemetry.ActionUpdated, note.ID, note)
	return note, nil
}

// DeleteNote removes a note permanently. ArchiveNote hides it instead.
func (s *Service) DeleteNote(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_note", domain.EntityNote, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	if err := s.store.DeleteNote(c.Ctx, id); err != nil {
		return err
	}

	c.Logger.WithEntity(domain.EntityNote, id).Info("note deleted")
	s.publish(domain.EntityNote, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// ArchiveNote hides a note from listings and search. Archived notes are
// removed by cleanup once past the retention window.
func (s *Service) ArchiveNote(ctx context.Context, id string) (note *domain.Note, err error) {
	c := s.start(ctx, "archive_note", domain.EntityNote, id)
	defer c.end(&err)

	note, err = s.setNoteArchived(c, id, true)
	if err != nil {
		return nil, err
	}
	s.publish(domain.EntityNote, telemetry.ActionArchived, id, note)
	return note, nil
}

// RestoreNote brings an archived note back.
func (s *Service) RestoreNote(ctx context.Context, id string) (note *domain.Note, err error) {
	c := s.start(ctx, "restore_note", domain.EntityNote, id)
	defer c.end(&err)

	note, err = s.setNoteArchived(c, id, false)
	if err != nil {
		return nil, err
	}
	s.publish(domain.EntityNote, telemetry.ActionRestored, id, note)
	return note, nil
}

func (s *Service) setNoteArchived(c *call, id string, archived bool) (*domain.Note, error) {
	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}

	note, err := s.store.GetNote(c.Ctx, id)
	if err != nil {
		return nil, err
	}
	if (note.ArchivedAt != nil) == archived {
		if archived {
			return nil, domain.NewBadRequestError("Note is already archived").WithEntity(domain.EntityNote).WithID(id)
		}
		return nil, domain.NewBadRequestError("Note is not archived").WithEntity(domain.EntityNote).WithID(id)
	}

	now := s.timestamp()
	note.ArchivedAt = nil
	if archived {
		note.ArchivedAt = &now
	}
	note.UpdatedAt = now

	if err := s.store.UpdateNote(c.Ctx, note); err != nil {
		return nil, err
	}
	s.refreshEntityCounts(c.Ctx)
	return note, nil
}

// SearchNotes matches query against note titles and content.
func (s *Service) SearchNotes(ctx context.Context, query string) (notes []domain.Note, err error) {
	c := s.start(ctx, "search_notes", domain.EntityNote, "")
	defer c.end(&err)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("search query is required").WithDetail("field", "query")
	}
	if len(query) > domain.MaxNoteTitleLength {
		return nil, domain.NewValidationError("search query is too long").WithDetail("field", "query")
	}

	notes, err = s.store.SearchNotes(c.Ctx, query)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(notes)))
	return notes, nil
}
