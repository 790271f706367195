package usecase

import (
	"sync"
	"testing"

	"weatherdine/internal/domain"
)

func TestSessionUnsavedTracking(t *testing.T) {
	s := NewSession("t1")
	s.Load([]domain.Message{userMsg("old 1"), userMsg("old 2")})
	if len(s.Unsaved()) != 0 {
		t.Fatal("loaded history must count as saved")
	}

	s.AddMessage(userMsg("new"))
	unsaved := s.Unsaved()
	if len(unsaved) != 1 || unsaved[0].Content != "new" {
		t.Fatalf("unexpected unsaved %+v", unsaved)
	}
	if unsaved[0].Timestamp.IsZero() {
		t.Error("AddMessage should stamp the message")
	}

	s.MarkSaved()
	if len(s.Unsaved()) != 0 || s.Len() != 3 {
		t.Errorf("after MarkSaved: unsaved=%d len=%d", len(s.Unsaved()), s.Len())
	}
}

func TestSessionMessagesReturnsCopy(t *testing.T) {
	s := NewSession("t1")
	s.AddMessage(userMsg("a"))
	msgs := s.Messages()
	msgs[0].Content = "changed"
	if s.Messages()[0].Content != "a" {
		t.Error("Messages must return a copy")
	}
}

func TestSessionConcurrentAdd(t *testing.T) {
	s := NewSession("t1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddMessage(userMsg("x"))
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
}

func TestNewThreadIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewThreadID()
		if len(id) != 26 {
			t.Fatalf("ULID length = %d", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
