package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/docquery/docquery/internal/log"
)

func TestHistoryLazyCreate(t *testing.T) {
	s := NewStore(log.NewNop())

	if got := s.History("fresh"); len(got) != 0 {
		t.Fatalf("new session has %d turns", len(got))
	}
	if s.Count() != 1 {
		t.Fatalf("History should create the session, count = %d", s.Count())
	}
}

func TestAppendOrdering(t *testing.T) {
	s := NewStore(log.NewNop())

	s.AppendUser("s1", "first question")
	s.AppendAssistant("s1", "first answer")
	s.AppendExchange("s1", "second question", "second answer")

	turns := s.History("s1")
	want := []Turn{
		{Role: RoleUser, Text: "first question"},
		{Role: RoleAssistant, Text: "first answer"},
		{Role: RoleUser, Text: "second question"},
		{Role: RoleAssistant, Text: "second answer"},
	}
	if len(turns) != len(want) {
		t.Fatalf("got %d turns, want %d", len(turns), len(want))
	}
	for i, w := range want {
		if turns[i] != w {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], w)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(log.NewNop())
	s.AppendUser("s1", "question")

	hist := s.History("s1")
	hist[0].Text = "mutated"

	if got := s.History("s1")[0].Text; got != "question" {
		t.Fatalf("transcript mutated through returned slice: %q", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(log.NewNop())

	s.AppendExchange("a", "qa", "aa")
	s.AppendExchange("b", "qb", "ab")

	if got := s.Len("a"); got != 2 {
		t.Fatalf("session a has %d turns", got)
	}
	if got := s.History("b")[0].Text; got != "qb" {
		t.Fatalf("session b transcript polluted: %q", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(log.NewNop())
	s.AppendUser("s1", "question")

	if err := s.Clear("s1"); err != nil {
		t.Fatalf("Clear existing: %v", err)
	}
	if got := s.Len("s1"); got != 0 {
		t.Fatalf("cleared session still has %d turns", got)
	}

	if err := s.Clear("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Clear missing: expected ErrSessionNotFound, got %v", err)
	}
}

func TestClearAll(t *testing.T) {
	s := NewStore(log.NewNop())
	s.AppendUser("a", "q")
	s.AppendUser("b", "q")
	s.AppendUser("c", "q")

	if got := s.ClearAll(); got != 3 {
		t.Fatalf("ClearAll = %d, want 3", got)
	}
	if s.Count() != 0 {
		t.Fatalf("sessions remain after ClearAll: %d", s.Count())
	}
	if got := s.ClearAll(); got != 0 {
		t.Fatalf("second ClearAll = %d, want 0", got)
	}
}

// TestConcurrentExchangesStayContiguous runs concurrent exchanges on one
// session and verifies each user/assistant pair lands contiguously.
func TestConcurrentExchangesStayContiguous(t *testing.T) {
	s := NewStore(log.NewNop())

	const exchanges = 2

	var wg sync.WaitGroup
	for i := 0; i < exchanges; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendExchange("s1",
				fmt.Sprintf("question-%d", i),
				fmt.Sprintf("answer-%d", i),
			)
		}(i)
	}
	wg.Wait()

	turns := s.History("s1")
	if len(turns) != exchanges*2 {
		t.Fatalf("got %d turns, want %d", len(turns), exchanges*2)
	}

	for i := 0; i < len(turns); i += 2 {
		u, a := turns[i], turns[i+1]
		if u.Role != RoleUser || a.Role != RoleAssistant {
			t.Fatalf("pair at %d has roles %s/%s", i, u.Role, a.Role)
		}
		// The answer must belong to the question it was paired with.
		var qn, an int
		fmt.Sscanf(u.Text, "question-%d", &qn)
		fmt.Sscanf(a.Text, "answer-%d", &an)
		if qn != an {
			t.Fatalf("pair at %d interleaved: %q / %q", i, u.Text, a.Text)
		}
	}
}

// TestConcurrentDifferentSessions verifies appends on distinct sessions do
// not corrupt each other under the race detector.
func TestConcurrentDifferentSessions(t *testing.T) {
	s := NewStore(log.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			for j := 0; j < 50; j++ {
				s.AppendExchange(id, "q", "a")
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("session-%d", i)
		if got := s.Len(id); got != 100 {
			t.Fatalf("%s has %d turns, want 100", id, got)
		}
	}
}
