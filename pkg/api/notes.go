package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func (s *Server) noteRoutes(r chi.Router) {
	r.Get("/", s.handleListNotes)
	r.Post("/", s.handleCreateNote)
	r.Get("/search", s.handleSearchNotes)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetNote)
		r.Patch("/", s.handleUpdateNote)
		r.Delete("/", s.handleDeleteNote)
		r.Post("/archive", s.handleArchiveNote)
		r.Post("/restore", s.handleRestoreNote)
	})
}

// handleListNotes lists every note, or the notes of ?parent_type and
// ?parent_id when both are given.
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parentType, parentID := q.Get("parent_type"), q.Get("parent_id")

	var (
		notes []domain.Note
		err   error
	)
	switch {
	case parentType == "" && parentID == "":
		notes, err = s.svc.ListNotes(r.Context())
	case parentType == "" || parentID == "":
		err = domain.NewBadRequestError("parent_type and parent_id must be given together")
	default:
		entity := domain.EntityType(parentType)
		if !entity.Valid() || entity == domain.EntityNote || entity == domain.EntityTag {
			err = domain.NewBadRequestError(fmt.Sprintf("notes cannot be attached to %q", parentType))
			break
		}
		notes, err = s.svc.ListNotesByParent(r.Context(), entity, parentID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// notesOf serves the notes of the entity named by the {id} URL parameter.
func (s *Server) notesOf(entity domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes, err := s.svc.ListNotesByParent(r.Context(), entity, urlID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.svc.SearchNotes(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.GetNote(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := s.svc.CreateNote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := s.svc.UpdateNote(r.Context(), urlID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteNote(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (s *Server) handleArchiveNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.ArchiveNote(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleRestoreNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.RestoreNote(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
