package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func (s *Server) lifeAreaRoutes(r chi.Router) {
	r.Get("/", s.handleListLifeAreas)
	r.Post("/", s.handleCreateLifeArea)
	r.Put("/order", s.handleReorderLifeAreas)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetLifeArea)
		r.Patch("/", s.handleUpdateLifeArea)
		r.Delete("/", s.handleDeleteLifeArea)
		r.Get("/goals", s.handleListGoalsByLifeArea)
		r.Get("/notes", s.notesOf(domain.EntityLifeArea))
	})
}

func (s *Server) handleListLifeAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.svc.ListLifeAreas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (s *Server) handleGetLifeArea(w http.ResponseWriter, r *http.Request) {
	area, err := s.svc.GetLifeArea(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, area)
}

func (s *Server) handleCreateLifeArea(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLifeAreaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	area, err := s.svc.CreateLifeArea(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, area)
}

func (s *Server) handleUpdateLifeArea(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLifeAreaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	area, err := s.svc.UpdateLifeArea(r.Context(), urlID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, area)
}

func (s *Server) handleDeleteLifeArea(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteLifeArea(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderLifeAreas(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	areas, err := s.svc.ReorderLifeAreas(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (s *Server) handleListGoalsByLifeArea(w http.ResponseWriter, r *http.Request) {
	goals, err := s.svc.ListGoalsByLifeArea(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) goalRoutes(r chi.Router) {
	r.Get("/", s.handleListGoals)
	r.Post("/", s.handleCreateGoal)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetGoal)
		r.Patch("/", s.handleUpdateGoal)
		r.Delete("/", s.handleDeleteGoal)
		r.Post("/progress", s.handleUpdateGoalProgress)
		r.Get("/projects", s.handleListProjectsByGoal)
		r.Get("/notes", s.notesOf(domain.EntityGoal))
	})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	var (
		goals []domain.Goal
		err   error
	)
	if areaID := r.URL.Query().Get("life_area_id"); areaID != "" {
		goals, err = s.svc.ListGoalsByLifeArea(r.Context(), areaID)
	} else {
		goals, err = s.svc.ListGoals(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.svc.GetGoal(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	goal, err := s.svc.CreateGoal(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	goal, err := s.svc.UpdateGoal(r.Context(), urlID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteGoal(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (s *Server) handleUpdateGoalProgress(w http.ResponseWriter, r *http.Request) {
	goal, err := s.svc.UpdateGoalProgress(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleListProjectsByGoal(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjectsByGoal(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) projectRoutes(r chi.Router) {
	r.Get("/", s.handleListProjects)
	r.Post("/", s.handleCreateProject)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetProject)
		r.Patch("/", s.handleUpdateProject)
		r.Delete("/", s.handleDeleteProject)
		r.Post("/progress", s.handleUpdateProjectProgress)
		r.Post("/archive", s.handleArchiveProject)
		r.Get("/tasks", s.handleListTasksByProject)
		r.Get("/notes", s.notesOf(domain.EntityProject))
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	var (
		projects []domain.Project
		err      error
	)
	if goalID := r.URL.Query().Get("goal_id"); goalID != "" {
		projects, err = s.svc.ListProjectsByGoal(r.Context(), goalID)
	} else {
		projects, err = s.svc.ListProjects(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.svc.GetProject(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	project, err := s.svc.CreateProject(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	project, err := s.svc.UpdateProject(r.Context(), urlID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (s *Server) handleUpdateProjectProgress(w http.ResponseWriter, r *http.Request) {
	project, err := s.svc.UpdateProjectProgress(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.ArchiveProject(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
