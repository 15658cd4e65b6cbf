package harness

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// recordingParser captures the framed buffer and counts releases on the
// documents it hands out.
type recordingParser struct {
	calls    int
	lastBuf  []byte
	fail     bool
	panicMsg string
	releases *int
}

type countingDoc struct {
	releases *int
}

func (d *countingDoc) Release() { *d.releases++ }

func (p *recordingParser) Parse(buf []byte) (Document, error) {
	p.calls++
	p.lastBuf = append([]byte(nil), buf...)
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.fail {
		return nil, errors.New("parse failed")
	}
	return &countingDoc{releases: p.releases}, nil
}

func newRecordingParser() *recordingParser {
	return &recordingParser{releases: new(int)}
}

func TestEmptyInputSkipsParser(t *testing.T) {
	parser := newRecordingParser()
	h := NewHandler(parser, zap.NewNop())

	if got := h.HandleInput(nil); got != StatusSkipped {
		t.Errorf("HandleInput(nil) = %v, want skipped", got)
	}
	if got := h.HandleInput([]byte{}); got != StatusSkipped {
		t.Errorf("HandleInput(empty) = %v, want skipped", got)
	}
	if parser.calls != 0 {
		t.Errorf("parser invoked %d times for empty input", parser.calls)
	}
}

func TestFramePlacesTerminatorAtLen(t *testing.T) {
	tests := [][]byte{
		[]byte("a"),
		[]byte("hello"),
		{0xff, 0x00, 0xfe}, // interior terminator bytes stay intact
		bytes.Repeat([]byte{0x41}, 4096),
	}

	for _, data := range tests {
		buf := Frame(data)
		if len(buf) != len(data)+1 {
			t.Fatalf("framed length = %d, want %d", len(buf), len(data)+1)
		}
		if !bytes.Equal(buf[:len(data)], data) {
			t.Error("content bytes altered by framing")
		}
		if buf[len(data)] != Terminator {
			t.Errorf("terminator missing at index %d", len(data))
		}
		// The last content byte must survive: terminating at len-1 is the
		// classic truncation bug.
		if len(data) > 0 && buf[len(data)-1] != data[len(data)-1] {
			t.Error("last content byte truncated")
		}
	}
}

func TestHandlerFramesInputForParser(t *testing.T) {
	parser := newRecordingParser()
	h := NewHandler(parser, zap.NewNop())

	data := []byte("key: value")
	if got := h.HandleInput(data); got != StatusAccepted {
		t.Fatalf("HandleInput = %v, want accepted", got)
	}
	want := append(append([]byte(nil), data...), Terminator)
	if !bytes.Equal(parser.lastBuf, want) {
		t.Errorf("parser saw %q, want %q", parser.lastBuf, want)
	}
}

func TestRejectedInputNoRelease(t *testing.T) {
	parser := newRecordingParser()
	parser.fail = true
	h := NewHandler(parser, zap.NewNop())

	if got := h.HandleInput([]byte("bad")); got != StatusRejected {
		t.Errorf("HandleInput = %v, want rejected", got)
	}
	if *parser.releases != 0 {
		t.Errorf("release called %d times with no document produced", *parser.releases)
	}
}

func TestAcceptedInputReleasesExactlyOnce(t *testing.T) {
	parser := newRecordingParser()
	h := NewHandler(parser, zap.NewNop())

	for i := 0; i < 3; i++ {
		if got := h.HandleInput([]byte("ok")); got != StatusAccepted {
			t.Fatalf("HandleInput = %v, want accepted", got)
		}
	}
	if *parser.releases != 3 {
		t.Errorf("release count = %d, want 3 (exactly one per accepted parse)", *parser.releases)
	}
}

func TestParserPanicPropagates(t *testing.T) {
	parser := newRecordingParser()
	parser.panicMsg = "parser fault"
	h := NewHandler(parser, zap.NewNop())

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("parser panic swallowed by the harness")
		}
		if r != "parser fault" {
			t.Errorf("recovered %v", r)
		}
		if *parser.releases != 0 {
			t.Errorf("release called %d times for a document that never escaped", *parser.releases)
		}
	}()
	h.HandleInput([]byte("boom"))
}

func TestTestOneInputAlwaysContinues(t *testing.T) {
	parser := newRecordingParser()
	h := NewHandler(parser, zap.NewNop())

	if rc := h.TestOneInput(nil); rc != 0 {
		t.Errorf("TestOneInput(empty) = %d, want 0", rc)
	}
	parser.fail = true
	if rc := h.TestOneInput([]byte("bad")); rc != 0 {
		t.Errorf("TestOneInput(rejected) = %d, want 0", rc)
	}
}

func TestStatusString(t *testing.T) {
	if StatusSkipped.String() != "skipped" || StatusAccepted.String() != "accepted" ||
		StatusRejected.String() != "rejected" || Status(99).String() != "unknown" {
		t.Error("Status.String mapping broken")
	}
}
