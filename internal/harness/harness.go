// Package harness wraps a single call into a foreign string parser with
// input framing and deterministic resource release, exposed through the
// single-input convention a fuzzing engine drives.
package harness

import (
	"go.uber.org/zap"
)

// Terminator closes the framed buffer handed to the parser. The target
// parsers consume a terminated string, not a length-prefixed buffer.
const Terminator = 0x00

// Status is the outcome of one harness invocation. The mapping is fixed so
// the engine's coverage accounting sees consistent results for the same
// class of input.
type Status int

const (
	StatusSkipped  Status = iota // empty input, parser never invoked
	StatusAccepted               // parser produced a document
	StatusRejected               // parser reported the input as invalid
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Document is an opaque parse result. The harness owns it for the duration
// of one invocation and must release it exactly once.
type Document interface {
	Release()
}

// Parser is the foreign parsing entry point consumed, not defined, here.
// It receives a terminator-framed buffer and returns a document or an
// error; the harness treats it as a black box.
type Parser interface {
	Parse(buf []byte) (Document, error)
}

type Handler struct {
	parser Parser
	logger *zap.Logger
}

func NewHandler(parser Parser, logger *zap.Logger) *Handler {
	return &Handler{parser: parser, logger: logger}
}

// Frame copies data into a fresh buffer of len(data)+1 with the terminator
// at index len(data). Terminating at len-1 would silently truncate the last
// input byte before every parse, so the content bytes are never touched.
func Frame(data []byte) []byte {
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	buf[len(data)] = Terminator
	return buf
}

// HandleInput runs one parse-and-release cycle. An empty input is skipped
// before the parser is reached. A document, once produced, is released on
// every exit path: the deferred release still runs when the parser panics
// mid-call, and the panic then propagates so genuine faults stay visible
// to the engine.
func (h *Handler) HandleInput(data []byte) Status {
	if len(data) == 0 {
		return StatusSkipped
	}

	buf := Frame(data)

	var doc Document
	defer func() {
		if doc != nil {
			doc.Release()
		}
	}()

	doc, err := h.parser.Parse(buf)
	if err != nil {
		// Expected and frequent under fuzzing; a rejection is a normal
		// negative result, not a fault.
		return StatusRejected
	}
	return StatusAccepted
}

// TestOneInput adapts the harness to the single-input engine convention.
// The return value is always 0 ("continue"); accept/reject is deliberately
// not encoded there, per the engine contract.
func (h *Handler) TestOneInput(data []byte) int {
	h.HandleInput(data)
	return 0
}
