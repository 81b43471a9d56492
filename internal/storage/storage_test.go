package storage

import (
	"os"
	"testing"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

func TestQueueStore_FIFO(t *testing.T) {
	q := NewQueueStore(t.TempDir(), time.Second)

	a := task.NewTask("a", ".", 0, false, nil)
	b := task.NewTask("b", ".", 0, false, nil)
	if err := q.Add(a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := q.Add(b); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if q.Count() != 2 {
		t.Fatalf("expected count 2, got %d", q.Count())
	}

	popped, ok := q.Pop()
	if !ok || popped.ID != a.ID {
		t.Fatalf("expected FIFO pop of a, got %+v ok=%v", popped, ok)
	}
}

func TestQueueStore_MoveToHead(t *testing.T) {
	q := NewQueueStore(t.TempDir(), time.Second)
	a := task.NewTask("a", ".", 0, false, nil)
	b := task.NewTask("b", ".", 0, false, nil)
	c := task.NewTask("c", ".", 0, false, nil)
	q.Add(a)
	q.Add(b)
	q.Add(c)

	moved, ok, err := q.MoveToHead(c.ID)
	if err != nil || !ok || moved.ID != c.ID {
		t.Fatalf("move to head failed: %+v %v %v", moved, ok, err)
	}

	popped, _ := q.Pop()
	if popped.ID != c.ID {
		t.Fatalf("expected c at head after reorder, got %s", popped.ID)
	}
}

func TestHistoryStore_BoundedAndOrdered(t *testing.T) {
	h := NewHistoryStore(t.TempDir(), time.Second, 2)

	t1 := task.NewTask("1", ".", 0, false, nil)
	t2 := task.NewTask("2", ".", 0, false, nil)
	t3 := task.NewTask("3", ".", 0, false, nil)

	h.AddCompleted(t1)
	h.AddCompleted(t2)
	h.AddCompleted(t3)

	page := h.GetCompleted(1, 10)
	if len(page.Items) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(page.Items))
	}
	if page.Items[0].ID != t3.ID {
		t.Fatalf("expected newest-first, got head %s", page.Items[0].ID)
	}
}

func TestScheduledStore_SaveIsUpsert(t *testing.T) {
	s := NewScheduledStore(t.TempDir(), time.Second)
	st := task.NewScheduledTask("n", "p", "* * * * *", ".", 0, false, nil)

	if err := s.Save(st); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	st.RunCount = 1
	if err := s.Save(st); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	if s.Count() != 1 {
		t.Fatalf("expected a single record after repeated save, got %d", s.Count())
	}
	got, _ := s.Get(st.ID)
	if got.RunCount != 1 {
		t.Fatalf("expected updated record, got run_count=%d", got.RunCount)
	}
}

func TestReadJSON_MalformedTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/queue.json"
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	var f queueFile
	ok := readJSON(path, &f)
	if ok {
		t.Fatalf("expected malformed JSON to report ok=false")
	}
	if len(f.Tasks) != 0 {
		t.Fatalf("expected empty collection on malformed read")
	}
}
