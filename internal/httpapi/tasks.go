package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

type createTaskRequest struct {
	Prompt       string   `json:"prompt"`
	Workspace    string   `json:"workspace"`
	TimeoutMS    int64    `json:"timeout_ms"`
	AutoApprove  bool     `json:"auto_approve"`
	AllowedTools []string `json:"allowed_tools"`
	ExtraArgs    string   `json:"extra_args"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}

	workspace, err := s.resolveWorkspace(req.Workspace)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_WORKSPACE", err.Error())
		return
	}

	t := task.NewTask(req.Prompt, workspace, req.TimeoutMS, req.AutoApprove, req.AllowedTools)
	t.ExtraArgs = req.ExtraArgs
	if err := task.ValidateTask(t); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := s.store.Queue.Add(t); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: t})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"queue":     s.store.Queue.GetAll(),
		"running":   s.store.Running.GetAll(),
		"completed": s.store.History.GetCompleted(pageParam(r), limitParam(r)),
		"failed":    s.store.History.GetFailed(pageParam(r), limitParam(r)),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if t, ok := s.store.Queue.Get(id); ok {
		writeOK(w, t)
		return
	}
	if t, ok := s.store.Running.Get(id); ok {
		writeOK(w, t)
		return
	}
	writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such task: "+id)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.store.Queue.Remove(id)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such queued task: "+id)
		return
	}
	writeOK(w, map[string]bool{"deleted": true})
}

func (s *Server) handleRunTaskNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.sched.RunTaskNow(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeOK(w, t)
}

type createScheduledRequest struct {
	Name         string   `json:"name"`
	Prompt       string   `json:"prompt"`
	Cron         string   `json:"cron"`
	Workspace    string   `json:"workspace"`
	TimeoutMS    int64    `json:"timeout_ms"`
	AutoApprove  bool     `json:"auto_approve"`
	AllowedTools []string `json:"allowed_tools"`
	Condition    string   `json:"condition"`
}

func (s *Server) handleCreateScheduled(w http.ResponseWriter, r *http.Request) {
	var req createScheduledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if err := task.ValidateScheduledName(req.Name); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := task.ValidatePrompt(req.Prompt); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	expr, err := cronParse(req.Cron)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_CRON", "invalid cron expression: "+err.Error())
		return
	}

	workspace, err := s.resolveWorkspace(req.Workspace)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_WORKSPACE", err.Error())
		return
	}

	st := task.NewScheduledTask(req.Name, req.Prompt, req.Cron, workspace, req.TimeoutMS, req.AutoApprove, req.AllowedTools)
	st.Condition = req.Condition
	if next, ok := expr.NextFire(nowUTC()); ok {
		st.NextRun = &next
	}

	if err := s.store.Scheduled.Save(st); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: st})
}

func (s *Server) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.store.Scheduled.GetAll())
}

func (s *Server) handleDeleteScheduled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.store.Scheduled.Delete(id)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such scheduled task: "+id)
		return
	}
	writeOK(w, map[string]bool{"deleted": true})
}

func (s *Server) handleRunScheduledNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.sched.RunScheduledNow(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeOK(w, t)
}

// handleToggleScheduled flips a ScheduledTask's enabled flag, honouring the
// invariant that a disabled task has no next_run and a re-enabled one has
// next_run recomputed from its cron expression.
func (s *Server) handleToggleScheduled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.store.Scheduled.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such scheduled task: "+id)
		return
	}
	st.Enabled = !st.Enabled
	applyEnabledInvariant(st)
	if err := s.store.Scheduled.Save(st); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	writeOK(w, st)
}

type patchScheduledRequest struct {
	Name         *string   `json:"name"`
	Prompt       *string   `json:"prompt"`
	Cron         *string   `json:"cron"`
	Workspace    *string   `json:"workspace"`
	TimeoutMS    *int64    `json:"timeout_ms"`
	AutoApprove  *bool     `json:"auto_approve"`
	AllowedTools *[]string `json:"allowed_tools"`
	Condition    *string   `json:"condition"`
	Enabled      *bool     `json:"enabled"`
}

// handlePatchScheduled applies a partial update to a ScheduledTask. Touching
// cron recomputes next_run (when enabled); touching enabled re-applies the
// enabled/next_run invariant.
func (s *Server) handlePatchScheduled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.store.Scheduled.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such scheduled task: "+id)
		return
	}

	var req patchScheduledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}

	cronChanged := false
	if req.Name != nil {
		if err := task.ValidateScheduledName(*req.Name); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		st.Name = *req.Name
	}
	if req.Prompt != nil {
		if err := task.ValidatePrompt(*req.Prompt); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		st.Prompt = *req.Prompt
	}
	if req.Cron != nil {
		if _, err := cronParse(*req.Cron); err != nil {
			writeErr(w, http.StatusBadRequest, "INVALID_CRON", err.Error())
			return
		}
		st.Cron = *req.Cron
		cronChanged = true
	}
	if req.Workspace != nil {
		workspace, err := s.resolveWorkspace(*req.Workspace)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "INVALID_WORKSPACE", err.Error())
			return
		}
		st.Workspace = workspace
	}
	if req.TimeoutMS != nil {
		if err := task.ValidateTimeout(*req.TimeoutMS); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		st.TimeoutMS = *req.TimeoutMS
	}
	if req.AutoApprove != nil {
		st.AutoApprove = *req.AutoApprove
	}
	if req.AllowedTools != nil {
		if err := task.ValidateAllowedTools(*req.AllowedTools); err != nil {
			writeErr(w, http.StatusBadRequest, "INVALID_TOOL", err.Error())
			return
		}
		st.AllowedTools = *req.AllowedTools
	}
	if req.Condition != nil {
		st.Condition = *req.Condition
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}

	if cronChanged && st.Enabled {
		if expr, err := cronParse(st.Cron); err == nil {
			if next, ok := expr.NextFire(nowUTC()); ok {
				st.NextRun = &next
			}
		}
	}
	applyEnabledInvariant(st)

	if err := s.store.Scheduled.Save(st); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	writeOK(w, st)
}

// applyEnabledInvariant enforces "enabled=false ⇒ next_run=null"; re-enabling
// recomputes next_run from the current cron expression when it is unset.
func applyEnabledInvariant(st *task.ScheduledTask) {
	if !st.Enabled {
		st.NextRun = nil
		return
	}
	if st.NextRun != nil {
		return
	}
	if expr, err := cronParse(st.Cron); err == nil {
		if next, ok := expr.NextFire(nowUTC()); ok {
			st.NextRun = &next
		}
	}
}

type validateCronRequest struct {
	Cron string `json:"cron"`
}

func (s *Server) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	var req validateCronRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	expr, err := cronParse(req.Cron)
	if err != nil {
		writeOK(w, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	resp := map[string]any{"valid": true, "normalized": expr.String()}
	if next, ok := expr.NextFire(nowUTC()); ok {
		resp["next_run"] = next
	}
	writeOK(w, resp)
}

func (s *Server) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Queue.Clear(); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "STORAGE_BUSY", err.Error())
		return
	}
	writeOK(w, map[string]bool{"cleared": true})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.sched.GetStatusInfo())
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	// The poll loop must outlive this request, so it is detached from the
	// request's cancellation.
	s.sched.Start(context.WithoutCancel(r.Context()))
	writeOK(w, s.sched.GetStatusInfo())
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeOK(w, s.sched.GetStatusInfo())
}

// resolveWorkspace enforces the workspace-sandbox rule: paths must resolve
// under the server's configured workspace root unless the operator has
// opted into SCHEDULER_ALLOW_ANY_WORKSPACE.
func (s *Server) resolveWorkspace(requested string) (string, error) {
	if requested == "" {
		return s.workspace, nil
	}
	if s.allowAny {
		return requested, nil
	}
	root, err := filepath.Abs(s.workspace)
	if err != nil {
		return "", err
	}
	var abs string
	if filepath.IsAbs(requested) {
		abs = filepath.Clean(requested)
	} else {
		abs, err = filepath.Abs(filepath.Join(s.workspace, requested))
		if err != nil {
			return "", err
		}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errWorkspaceEscape
	}
	return abs, nil
}

func pageParam(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		return v
	}
	return 1
}

func limitParam(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		return v
	}
	return 20
}
