package types

type CrashMessage struct {
	CrashFile string // path to the crash input on the local filesystem
	Run       *RunContext
}

type SeedMessage struct {
	SeedFile string
	Run      *RunContext
}

// SeedEvent is the wire form published to the seed queue.
type SeedEvent struct {
	RunID    string `json:"run_id"`
	Target   string `json:"target"`
	Engine   string `json:"engine"`
	SeedPath string `json:"seed_path"`
}
