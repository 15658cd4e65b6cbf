// Package replay runs a single recorded input through the parse harness so
// a crashing input discovered by an engine can be reproduced outside it.
package replay

import (
	"os"

	"go.uber.org/zap"

	"fuzzshim/internal/harness"
)

type Driver struct {
	handler *harness.Handler
	logger  *zap.Logger
}

func NewDriver(handler *harness.Handler, logger *zap.Logger) *Driver {
	return &Driver{handler: handler, logger: logger}
}

// Replay performs one parse-and-release cycle over the file at path and
// returns the process exit code. A zero-length file is handled before any
// framing happens, so the terminator write can never underflow the buffer.
func (d *Driver) Replay(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Error("failed to read input file", zap.String("path", path), zap.Error(err))
		return 1
	}

	if len(data) == 0 {
		d.logger.Info("input file is empty, nothing to parse", zap.String("path", path))
		return 0
	}

	status := d.handler.HandleInput(data)
	d.logger.Info("replay finished",
		zap.String("path", path),
		zap.Int("size", len(data)),
		zap.String("status", status.String()),
	)
	return 0
}
