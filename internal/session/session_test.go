package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
)

func drain(t *testing.T, ch <-chan agent.Event, timeout time.Duration) []agent.Event {
	t.Helper()
	var out []agent.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out draining events")
		}
	}
}

func TestOpenStream_SimpleCompletion(t *testing.T) {
	ad := agent.NewMockAdapter(
		agent.Event{Kind: agent.EventText, Text: "hi"},
		agent.Event{Kind: agent.EventComplete},
	)
	m := NewManager(func() agent.Adapter { return ad }, 5)
	s, err := m.OpenStream(context.Background(), "hello", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	events := drain(t, s.Events(), time.Second)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestOpenStream_AdmissionCap(t *testing.T) {
	m := NewManager(func() agent.Adapter { return agent.NewMockAdapter() }, 1)

	s1, err := m.OpenStream(context.Background(), "a", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	m.mu.Lock()
	m.sessions[s1.ID] = s1 // ensure registered even if pump already finished
	m.mu.Unlock()

	s2, err := m.OpenStream(context.Background(), "b", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	events := drain(t, s2.Events(), time.Second)
	if len(events) != 1 || events[0].Text == "" {
		t.Fatalf("expected a single busy TEXT event, got %+v", events)
	}
}

func TestSubmitAnswer_QuestionIDMismatchRejected(t *testing.T) {
	ad := agent.NewMockAdapter(
		agent.Event{Kind: agent.EventAskUserQuestion, ToolUseID: "tu1", Question: "continue?"},
	)
	m := NewManager(func() agent.Adapter { return ad }, 5)
	s, err := m.OpenStream(context.Background(), "hello", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	// Wait for the question to arrive.
	var q Question
	deadline := time.After(time.Second)
	for {
		if pq, ok := s.PendingQuestion(); ok {
			q = pq
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for pending question")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if q.Text != "continue?" {
		t.Fatalf("expected sanitized question text, got %q", q.Text)
	}

	if err := m.SubmitAnswer(s.ID, Answer{QuestionID: "wrong-id", Text: "yes"}); err == nil {
		t.Fatalf("expected mismatch rejection")
	}
	if err := m.SubmitAnswer(s.ID, Answer{QuestionID: q.ID, Text: "yes"}); err != nil {
		t.Fatalf("expected matching answer to succeed: %v", err)
	}
}

func TestSubmitAnswer_InjectsJSONLQuestionsAndAnswersPayload(t *testing.T) {
	ad := agent.NewMockAdapter(
		agent.Event{Kind: agent.EventAskUserQuestion, ToolUseID: "tu1", Question: "continue?"},
		agent.Event{Kind: agent.EventComplete},
	)
	m := NewManager(func() agent.Adapter { return ad }, 5)
	s, err := m.OpenStream(context.Background(), "hello", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	var q Question
	deadline := time.After(time.Second)
	for {
		if pq, ok := s.PendingQuestion(); ok {
			q = pq
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for pending question")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := m.SubmitAnswer(s.ID, Answer{QuestionID: q.ID, Text: "yes"}); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	drain(t, s.Events(), time.Second)

	if len(ad.Injections) != 1 {
		t.Fatalf("expected exactly one injected tool result, got %d", len(ad.Injections))
	}
	got := ad.Injections[0].Result
	if !strings.Contains(got, `"questions":["continue?"]`) || !strings.Contains(got, `"continue?":"yes"`) {
		t.Fatalf("expected JSONL questions/answers payload, got %q", got)
	}
	if !strings.Contains(got, "User answered") {
		t.Fatalf("expected human-readable description alongside JSONL payload, got %q", got)
	}
}

func TestPump_QuestionTimeoutInjectsStockMessage(t *testing.T) {
	orig := defaultQuestionTimeout
	defaultQuestionTimeout = 20 * time.Millisecond
	defer func() { defaultQuestionTimeout = orig }()

	ad := agent.NewMockAdapter(
		agent.Event{Kind: agent.EventAskUserQuestion, ToolUseID: "tu1", Question: "continue?"},
		agent.Event{Kind: agent.EventComplete},
	)
	m := NewManager(func() agent.Adapter { return ad }, 5)
	s, err := m.OpenStream(context.Background(), "hello", agent.RunOptions{})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	drain(t, s.Events(), time.Second)

	if len(ad.Injections) != 1 || ad.Injections[0].Result != noAnswerMessage {
		t.Fatalf("expected the stock no-answer message to be injected on timeout, got %+v", ad.Injections)
	}
}

func TestSanitizeAnswer_TruncatesAndStripsMarkup(t *testing.T) {
	long := make([]byte, maxAnswerLen+50)
	for i := range long {
		long[i] = 'a'
	}
	got := sanitizeAnswer("<b>" + string(long) + "</b>")
	if len(got) != maxAnswerLen {
		t.Fatalf("expected truncation to %d chars, got %d", maxAnswerLen, len(got))
	}
	if strings.ContainsAny(got, "<>") {
		t.Fatalf("expected markup characters stripped, got %q", got[:10])
	}
}
