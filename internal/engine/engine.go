package engine

import (
	"context"
	"time"

	"fuzzshim/internal/types"
)

// Engine describes one way of driving a fuzzing campaign over the corpus
// and seed directories the launcher validated.
type Engine interface {
	// Run starts fuzzing for the given run context.
	//
	// Fuzzing is expected to finish *before* the timeout. If not, it must
	// be killed when the context is done, and the handler's resources
	// closed with it.
	Run(ctx context.Context, run *types.RunContext, timeout time.Duration) (Handler, error)
	SupportedEngines() []string
}

// Handler manages one running campaign and exposes its results.
type Handler interface {
	// Channels for new crashes / seeds. Each channel is owned by the
	// handler and closes when (1) no more results will show up, or
	// (2) the context passed to Run is done.
	ConsumeCrashes() (<-chan types.CrashMessage, error)
	ConsumeSeeds() (<-chan types.SeedMessage, error)

	// BlockUntilFinished blocks until all campaign resources are shut
	// down, or the context passed to Run is done.
	BlockUntilFinished()
}
