package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/session"
)

type streamRequest struct {
	Prompt       string   `json:"prompt"`
	Workspace    string   `json:"workspace"`
	AllowedTools []string `json:"allowed_tools"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream opens a new streaming session and relays its events either
// over SSE (default) or a websocket, selected via ?transport=ws.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	workspace, err := s.resolveWorkspace(req.Workspace)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_WORKSPACE", err.Error())
		return
	}

	sess, err := s.sessions.OpenStream(r.Context(), req.Prompt, agent.RunOptions{
		Workspace:      workspace,
		AllowedTools:   req.AllowedTools,
		PermissionMode: "default",
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "AGENT_ERROR", err.Error())
		return
	}

	if r.URL.Query().Get("transport") == "ws" {
		s.serveWebsocket(w, r, sess)
		return
	}
	s.serveSSE(w, r, sess)
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, sess *session.StreamSession) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "response writer does not support flushing")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range sess.Events() {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request, sess *session.StreamSession) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for ev := range sess.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

type answerRequest struct {
	SessionID       string            `json:"session_id"`
	QuestionID      string            `json:"question_id"`
	Answer          string            `json:"answer"`
	FollowUpAnswers map[string]string `json:"follow_up_answers,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	err := s.sessions.SubmitAnswer(req.SessionID, session.Answer{
		QuestionID:      req.QuestionID,
		Text:            req.Answer,
		FollowUpAnswers: req.FollowUpAnswers,
	})
	if err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	writeOK(w, map[string]bool{"accepted": true})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such session: "+id)
		return
	}
	q, waiting := sess.PendingQuestion()
	resp := map[string]any{
		"id":         sess.ID,
		"status":     sess.Status,
		"created_at": sess.CreatedAt,
		"is_waiting": waiting,
	}
	if waiting {
		resp["pending_question_id"] = q.ID
	}
	writeOK(w, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		q, waiting := sess.PendingQuestion()
		entry := map[string]any{
			"id":         sess.ID,
			"status":     sess.Status,
			"created_at": sess.CreatedAt,
			"is_waiting": waiting,
		}
		if waiting {
			entry["pending_question_id"] = q.ID
		}
		out = append(out, entry)
	}
	writeOK(w, out)
}

// rateLimited wraps a handler with a per-IP token bucket limiter, grounded
// on the teacher's gateway rate-limiting concern.
func rateLimited(next http.Handler) http.Handler {
	const rps = 2
	const burst = 5

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rps, burst)
			limiters[key] = l
		}
		return l
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiterFor(host).Allow() {
			writeErr(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many stream requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
