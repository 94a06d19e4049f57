package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func (s *Server) taskRoutes(r chi.Router) {
	r.Get("/", s.handleListTasks)
	r.Post("/", s.handleCreateTask)
	r.Post("/with-subtasks", s.handleCreateTaskWithSubtasks)
	r.Get("/today", s.handleListTasksDueToday)
	r.Get("/overdue", s.handleListOverdueTasks)
	r.Post("/bulk", s.handleBulkUpdateTasks)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetTask)
		r.Patch("/", s.handleUpdateTask)
		r.Delete("/", s.handleDeleteTask)
		r.Post("/toggle", s.handleToggleTask)
		r.Get("/subtasks", s.handleListSubtasks)
		r.Post("/tags", s.handleTagTask)
		r.Delete("/tags/{tag}", s.handleUntagTask)
		r.Get("/notes", s.notesOf(domain.EntityTask))
	})
}

// handleListTasks lists every task, the tasks of ?project_id, or the tasks
// matching the ?filter expression.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []domain.Task
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("filter") != "":
		tasks, err = s.svc.FilterTasks(r.Context(), q.Get("filter"))
	case q.Get("project_id") != "":
		tasks, err = s.svc.ListTasksByProject(r.Context(), q.Get("project_id"))
	default:
		tasks, err = s.svc.ListTasks(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleListTasksByProject(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.ListTasksByProject(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleListTasksDueToday(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.ListTasksDueToday(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleListOverdueTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.ListOverdueTasks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.GetTask(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.ListSubtasks(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleCreateTaskWithSubtasks(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTaskWithSubtasksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.CreateTaskWithSubtasks(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.UpdateTask(r.Context(), urlID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteTask(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.ToggleTaskComplete(r.Context(), urlID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleBulkUpdateTasks(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkUpdateTasksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.BulkUpdateTasks(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type tagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleTagTask(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.TagTask(r.Context(), urlID(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUntagTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.UntagTask(r.Context(), urlID(r), chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) tagRoutes(r chi.Router) {
	r.Get("/", s.handleListTags)
	r.Post("/", s.handleCreateTag)
	r.Delete("/{id}", s.handleDeleteTag)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.ListTags(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tag, err := s.svc.CreateTag(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := s.svc.DeleteTag(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted{ID: id, Deleted: true})
}
