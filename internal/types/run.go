package types

// RunContext identifies one engine launch and carries the directories the
// launcher validated before handing control over.
type RunContext struct {
	RunID     string `json:"run_id"`
	Engine    string `json:"engine"`
	Target    string `json:"target"`
	ProgPath  string `json:"prog_path"`
	CorpusDir string `json:"corpus_dir"`
	SeedDir   string `json:"seed_dir"`
	DictPath  string `json:"dict_path,omitempty"`
}
