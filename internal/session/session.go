// Package session implements the streaming interactive session manager: a
// single task run driven live over SSE, able to suspend mid-run on an
// ask_user_question tool call and resume once the caller answers it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/metrics"
)

// DefaultMaxConcurrentSessions caps how many sessions may be open at once,
// independent of how many tasks are queued.
const DefaultMaxConcurrentSessions = 5

// sessionTTL is how long an idle/finished session is kept before the
// cleanup sweep reaps it.
const sessionTTL = 4 * time.Hour

const (
	maxAnswerLen      = 1000
	maxOptionLabelLen = 100
	maxQuestionDepth  = 3
)

// defaultQuestionTimeout bounds how long the pump suspends awaiting an
// answer before injecting the stock no-answer tool result and resuming.
// Package-level var (not const) so tests can shorten it.
var defaultQuestionTimeout = 300 * time.Second

// noAnswerMessage is injected as the tool result when a question times out
// or the session is cancelled while waiting on one.
const noAnswerMessage = "User did not answer the question."

// Status is a StreamSession's lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusWaiting   Status = "WAITING_FOR_ANSWER"
	StatusComplete  Status = "COMPLETE"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// Question is a single pending ask_user_question pause.
type Question struct {
	ID        string    `json:"id"`
	ToolUseID string    `json:"tool_use_id"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	AskedAt   time.Time `json:"asked_at"`
}

// Answer is the caller's response to a pending Question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	// FollowUpAnswers optionally pre-answers questions the agent has not
	// asked yet, keyed by question text, folded into the injected payload
	// alongside the direct answer.
	FollowUpAnswers map[string]string `json:"follow_up_answers,omitempty"`
}

// toolResultPayload is the JSONL-shaped object injected back into the agent
// on answer: Answers maps question text to the user's response text.
type toolResultPayload struct {
	Questions []string          `json:"questions"`
	Answers   map[string]string `json:"answers"`
}

// buildAnswerResult renders the JSONL payload plus a human-readable
// description, per the question/answer injection protocol.
func buildAnswerResult(questionText string, ans Answer) string {
	answers := map[string]string{questionText: ans.Text}
	for q, a := range ans.FollowUpAnswers {
		answers[q] = a
	}
	questions := make([]string, 0, len(answers))
	questions = append(questions, questionText)
	for q := range ans.FollowUpAnswers {
		questions = append(questions, q)
	}
	payload := toolResultPayload{Questions: questions, Answers: answers}
	line, err := json.Marshal(payload)
	if err != nil {
		slog.Error("session: failed to marshal answer payload", "error", err)
		return fmt.Sprintf("%s: %s", questionText, ans.Text)
	}
	desc := fmt.Sprintf("User answered %q with: %s", questionText, ans.Text)
	return string(line) + "\n" + desc
}

// StreamSession is one live, possibly-suspended agent run.
type StreamSession struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mu       sync.Mutex
	adapter  agent.Adapter
	events   chan agent.Event
	pending  *Question
	waitCh   chan Answer
	depth    int
	cancelFn context.CancelFunc
}

// Manager owns every live StreamSession and enforces the global admission
// cap and periodic cleanup. Each session gets its own Adapter instance (via
// newAdapter) so concurrent sessions never contend for one adapter's
// single in-flight run slot.
type Manager struct {
	maxConcurrent int
	newAdapter    func() agent.Adapter

	mu       sync.Mutex
	sessions map[string]*StreamSession
}

func NewManager(newAdapter func() agent.Adapter, maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	return &Manager{
		maxConcurrent: maxConcurrent,
		newAdapter:    newAdapter,
		sessions:      make(map[string]*StreamSession),
	}
}

// OpenStream starts a new session for prompt, returning its event channel.
// If the admission cap is already reached, a single system TEXT event is
// sent on the returned channel explaining the system is busy, and the
// channel is closed immediately (the request is not queued) — this keeps the SSE contract uniform
// for callers instead of returning an error type they must special-case.
func (m *Manager) OpenStream(ctx context.Context, prompt string, opts agent.RunOptions) (*StreamSession, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.maxConcurrent {
		m.mu.Unlock()
		busy := newSession()
		busy.Status = StatusError
		ch := make(chan agent.Event, 1)
		ch <- agent.Event{Kind: agent.EventText, Text: "system busy: maximum concurrent sessions reached"}
		close(ch)
		busy.events = ch
		return busy, nil
	}
	m.mu.Unlock()

	s := newSession()
	s.adapter = m.newAdapter()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionActive.Set(float64(count))

	events, err := s.adapter.Run(runCtx, sanitizeText(prompt), opts)
	if err != nil {
		cancel()
		s.Status = StatusError
		return s, err
	}

	out := make(chan agent.Event, 16)
	s.events = out
	go m.pump(runCtx, s, events, out)

	return s, nil
}

// pump forwards adapter events to the session's outward channel, pausing on
// ASK_USER_QUESTION. The pending-question state is installed BEFORE the
// event is forwarded to the caller, so a SubmitAnswer racing in immediately
// after the caller observes the question can never arrive before the
// session is ready to receive it.
func (m *Manager) pump(ctx context.Context, s *StreamSession, in <-chan agent.Event, out chan<- agent.Event) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			s.setStatus(StatusCancelled)
			return
		case ev, ok := <-in:
			if !ok {
				s.setStatus(StatusComplete)
				return
			}

			if ev.Kind == agent.EventAskUserQuestion {
				s.mu.Lock()
				if s.depth >= maxQuestionDepth {
					s.mu.Unlock()
					out <- agent.Event{Kind: agent.EventError, Err: "VALIDATION_ERROR: maximum follow-up question depth exceeded"}
					s.setStatus(StatusError)
					return
				}
				s.depth++
				wait := make(chan Answer, 1)
				questionText := sanitizeText(ev.Question)
				s.pending = &Question{
					ID:        uuid.NewString(),
					ToolUseID: ev.ToolUseID,
					Text:      questionText,
					Options:   sanitizeOptions(ev.Options),
					AskedAt:   time.Now().UTC(),
				}
				s.waitCh = wait
				s.mu.Unlock()
				s.setStatus(StatusWaiting)

				out <- ev

				timer := time.NewTimer(defaultQuestionTimeout)
				select {
				case ans := <-wait:
					timer.Stop()
					result := buildAnswerResult(questionText, ans)
					if err := s.adapter.InjectToolResult(ctx, ev.ToolUseID, result); err != nil {
						out <- agent.Event{Kind: agent.EventError, Err: err.Error()}
						s.setStatus(StatusError)
						return
					}
					s.setStatus(StatusActive)
					continue
				case <-timer.C:
					s.clearPending()
					if err := s.adapter.InjectToolResult(ctx, ev.ToolUseID, noAnswerMessage); err != nil {
						out <- agent.Event{Kind: agent.EventError, Err: err.Error()}
						s.setStatus(StatusError)
						return
					}
					s.setStatus(StatusActive)
					continue
				case <-ctx.Done():
					timer.Stop()
					s.clearPending()
					// Best-effort: ctx is already cancelled, so the adapter
					// may ignore or fail this injection as it tears down.
					_ = s.adapter.InjectToolResult(context.Background(), ev.ToolUseID, noAnswerMessage)
					s.setStatus(StatusCancelled)
					return
				}
			}

			out <- ev
			if ev.Kind == agent.EventComplete {
				s.setStatus(StatusComplete)
			} else if ev.Kind == agent.EventError {
				s.setStatus(StatusError)
			}
		}
	}
}

// SubmitAnswer delivers an answer to the session's single pending question.
// It is rejected if the session has no pending question or the question_id
// does not match exactly.
func (m *Manager) SubmitAnswer(sessionID string, ans Answer) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("session: no such session: %s", sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.waitCh == nil {
		return fmt.Errorf("session: no pending question on session %s", sessionID)
	}
	if ans.QuestionID != s.pending.ID {
		return fmt.Errorf("session: question_id mismatch: expected %s, got %s", s.pending.ID, ans.QuestionID)
	}

	ans.Text = sanitizeAnswer(ans.Text)
	s.pending = nil
	wait := s.waitCh
	s.waitCh = nil
	wait <- ans
	return nil
}

func (m *Manager) Get(id string) (*StreamSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) List() []*StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*StreamSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Cleanup removes sessions whose last update is older than the TTL. It is
// meant to be called periodically (e.g. every few minutes) by a background
// goroutine for the lifetime of the process.
func (m *Manager) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := now.Sub(s.UpdatedAt) > sessionTTL
		s.mu.Unlock()
		if stale {
			if s.cancelFn != nil {
				s.cancelFn()
			}
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("session: cleanup reaped stale sessions", "count", removed)
	}
	metrics.SessionActive.Set(float64(len(m.sessions)))
	return removed
}

// RunCleanupLoop blocks, sweeping stale sessions every interval until ctx is
// cancelled.
func (m *Manager) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.Cleanup(now)
		}
	}
}

func newSession() *StreamSession {
	now := time.Now().UTC()
	return &StreamSession{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *StreamSession) setStatus(st Status) {
	s.mu.Lock()
	s.Status = st
	s.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Events returns the session's outward event channel.
func (s *StreamSession) Events() <-chan agent.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// clearPending drops the pending question and wait channel, used when a
// question times out or its session is cancelled without an answer.
func (s *StreamSession) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.waitCh = nil
	s.mu.Unlock()
}

// PendingQuestion returns the current pending question, if any.
func (s *StreamSession) PendingQuestion() (Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Question{}, false
	}
	return *s.pending, true
}

var sanitizeReplacer = strings.NewReplacer("<", "", ">", "", "&", "", `"`, "", "'", "")

func sanitizeText(s string) string {
	return sanitizeReplacer.Replace(s)
}

func sanitizeAnswer(s string) string {
	s = sanitizeText(s)
	if len(s) > maxAnswerLen {
		s = s[:maxAnswerLen]
	}
	return s
}

func sanitizeOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		o = sanitizeText(o)
		if len(o) > maxOptionLabelLen {
			o = o[:maxOptionLabelLen]
		}
		out = append(out, o)
	}
	return out
}
