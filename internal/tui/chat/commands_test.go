package chat

import (
	"strings"
	"testing"

	"github.com/docuchat/docuchat/internal/testutil"
)

func TestFilterCommands(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"/help", "help"},
		{"q", "quit"},
		{"exit", "quit"},
		{"mod", "model"},
		{"retr", "retry"},
	}
	for _, tt := range tests {
		got := FilterCommands(tt.query)
		if len(got) == 0 || got[0].Name != tt.want {
			t.Errorf("FilterCommands(%q) = %v, want first %q", tt.query, got, tt.want)
		}
	}
	if got := FilterCommands(""); len(got) != len(AllCommands()) {
		t.Errorf("empty query should list every command, got %d", len(got))
	}
	if got := FilterCommands("zzz"); len(got) != 0 {
		t.Errorf("expected no match for zzz, got %v", got)
	}
}

func TestModelCommandSwitchesByFuzzyName(t *testing.T) {
	m, _ := newTestModel(t, false)

	m.ExecuteCommand("/model mini")
	if m.Model() != "gpt-4o-mini" {
		t.Fatalf("expected gpt-4o-mini, got %q", m.Model())
	}

	m.ExecuteCommand("/model claude-3")
	if m.Model() != "gpt-4o-mini" {
		t.Fatalf("unknown model must not change the selection, got %q", m.Model())
	}
	if !strings.Contains(m.notice, "Unknown model") {
		t.Fatalf("expected an unknown model notice, got %q", m.notice)
	}
}

func TestModelCommandListsOffered(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.ExecuteCommand("/model")
	testutil.AssertContainsPlain(t, m.View(), "[gpt-3.5-turbo]")
	testutil.AssertContainsPlain(t, m.View(), "gpt-4o")
}

func TestRetryResendsLastUserMessage(t *testing.T) {
	m, backend := newTestModel(t, false)

	_, cmd := m.ExecuteCommand("/retry")
	if cmd != nil {
		t.Fatal("retry with no history must not send")
	}

	typeText(m, "first")
	_, cmd = m.handleKeyMsg(keyEnter())
	run(t, m, cmd)

	_, cmd = m.ExecuteCommand("/retry")
	run(t, m, cmd)
	if len(backend.sent) != 2 || backend.sent[1] != "first" {
		t.Fatalf("expected the last message to be resent, got %v", backend.sent)
	}
}

func TestClearCommand(t *testing.T) {
	m, backend := newTestModel(t, false)
	m.ExecuteCommand("/clear")
	if backend.cleared != 1 {
		t.Fatalf("expected clear to reach the backend, got %d", backend.cleared)
	}
}

func TestStatusCommand(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.ExecuteCommand("/status")
	testutil.AssertContainsPlain(t, m.View(), "HTTP")
	testutil.AssertContainsPlain(t, m.View(), "استریم وب‌سوکت غیرفعال است")
}

func TestUnknownCommand(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.ExecuteCommand("/bogus")
	testutil.AssertContainsPlain(t, m.View(), "Unknown command: /bogus")
}

func TestSlashInputRunsCommand(t *testing.T) {
	m, backend := newTestModel(t, false)
	typeText(m, "/quit")
	_, cmd := m.handleKeyMsg(keyEnter())
	if cmd == nil || !m.quitting {
		t.Fatal("expected /quit typed in the composer to quit")
	}
	if len(backend.sent) != 0 {
		t.Fatal("commands must not be sent as messages")
	}
}
