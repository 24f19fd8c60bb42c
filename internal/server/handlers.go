package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"git.home.luguber.info/inful/dochost/internal/build"
	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/models"
)

// TriggerRequest is the optional body of a build trigger.
type TriggerRequest struct {
	VersionID int64 `json:"version_id"`
}

// TriggerResponse is returned when a build was queued.
type TriggerResponse struct {
	BuildID int64  `json:"build_id"`
	TaskID  string `json:"task_id"`
}

// TaskResponse describes a queued or finished task.
type TaskResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Successful bool   `json:"successful"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleTriggerBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := pathID(r)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}

	var req TriggerRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, dherrors.ValidationFailed("body", err.Error()))
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.adapter.WriteErrorResponse(w, r, dherrors.ValidationFailed("body", err.Error()))
			return
		}
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	version, err := s.task.GetVersion(ctx, project, req.VersionID)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}

	b := &models.Build{
		ProjectID: project.ID,
		VersionID: version.ID,
		Type:      models.BuildTypeHTML,
		State:     models.BuildStateTriggered,
	}
	if err := s.store.CreateBuild(ctx, b); err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}

	res := s.task.Delay(ctx, project.ID, build.Options{BuildID: b.ID, VersionID: version.ID, Record: true})
	s.logger.Info("Build triggered",
		logfields.Project(project.Slug), logfields.BuildID(b.ID), logfields.TaskID(res.ID))

	writeJSON(w, http.StatusAccepted, TriggerResponse{BuildID: b.ID, TaskID: res.ID})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	b, err := s.store.GetBuild(r.Context(), id)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.queue.Get(id)
	if !ok {
		s.adapter.WriteErrorResponse(w, r,
			dherrors.New(dherrors.CategoryNotFound, dherrors.SeverityInfo, "task not found").WithContext("id", id))
		return
	}
	resp := TaskResponse{
		ID:         res.ID,
		Name:       res.Name,
		Status:     string(res.Status()),
		Successful: res.Successful(),
		Result:     res.Result(),
	}
	if err := res.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dherrors.ValidationFailed("id", "must be a positive integer")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("failed encoding JSON response", logfields.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
	}
}
