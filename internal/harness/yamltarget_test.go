package harness

import (
	"testing"

	"go.uber.org/zap"
)

func TestYAMLTargetAccepts(t *testing.T) {
	h := NewHandler(&YAMLTarget{}, zap.NewNop())

	if got := h.HandleInput([]byte("key: value\nlist:\n  - 1\n  - 2\n")); got != StatusAccepted {
		t.Errorf("valid yaml = %v, want accepted", got)
	}
}

func TestYAMLTargetRejects(t *testing.T) {
	h := NewHandler(&YAMLTarget{}, zap.NewNop())

	if got := h.HandleInput([]byte("key: [unclosed")); got != StatusRejected {
		t.Errorf("broken yaml = %v, want rejected", got)
	}
}

func TestYAMLTargetStopsAtTerminator(t *testing.T) {
	target := &YAMLTarget{}

	// Everything past the terminator is garbage the parser must never read.
	buf := append([]byte("ok: true"), Terminator)
	buf = append(buf, []byte("][{{ not yaml")...)

	doc, err := target.Parse(buf)
	if err != nil {
		t.Fatalf("content before terminator rejected: %v", err)
	}
	doc.Release()
}

func TestYAMLTargetEmptyBuffer(t *testing.T) {
	if _, err := (&YAMLTarget{}).Parse(nil); err == nil {
		t.Error("unframed empty buffer accepted")
	}
}

func FuzzHandleInput(f *testing.F) {
	f.Add([]byte("key: value"))
	f.Add([]byte(""))
	f.Add([]byte("- a\n- b\n"))
	f.Add([]byte{0x00})
	f.Add([]byte("{]["))

	h := NewHandler(&YAMLTarget{}, zap.NewNop())
	f.Fuzz(func(t *testing.T, data []byte) {
		status := h.HandleInput(data)
		if len(data) == 0 && status != StatusSkipped {
			t.Errorf("empty input = %v, want skipped", status)
		}
		if len(data) > 0 && status == StatusSkipped {
			t.Errorf("non-empty input skipped")
		}
		// Same input, same status: the engine's accounting depends on it.
		if again := h.HandleInput(data); again != status {
			t.Errorf("status not stable: %v then %v", status, again)
		}
	})
}
