package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LaunchRequest is a validated launch argument vector: the corpus and seed
// directories the engine will work over, plus an optional dictionary.
type LaunchRequest struct {
	Prog      string
	CorpusDir string
	SeedDir   string
	DictPath  string // empty when no -x flag was given
}

// EngineMain receives a validated request and runs the engine loop. It is
// not expected to return while the engine is operating normally.
type EngineMain func(req *LaunchRequest)

// Shim is the default process entry point for fuzz target binaries. It
// validates the argument vector and either hands control to the engine or
// prints usage. A malformed invocation is deliberately not an error: build
// systems probe target binaries with no arguments to check linkage, and
// those probes must exit zero.
type Shim struct {
	out    io.Writer
	logger *zap.Logger
	main   EngineMain
}

func NewShim(out io.Writer, logger *zap.Logger, main EngineMain) *Shim {
	return &Shim{out: out, logger: logger, main: main}
}

// ParseArgs checks argv against the two accepted shapes:
//
//	prog corpus_dir seed_dir
//	prog -x dictionary corpus_dir seed_dir
//
// Directory existence is checked separately by Validate; ParseArgs is a
// pure shape check.
func ParseArgs(argv []string) (*LaunchRequest, bool) {
	switch len(argv) {
	case 3:
		return &LaunchRequest{
			Prog:      argv[0],
			CorpusDir: argv[1],
			SeedDir:   argv[2],
		}, true
	case 5:
		if argv[1] != "-x" {
			return nil, false
		}
		return &LaunchRequest{
			Prog:      argv[0],
			DictPath:  argv[2],
			CorpusDir: argv[3],
			SeedDir:   argv[4],
		}, true
	default:
		return nil, false
	}
}

// Validate confirms that both the corpus and seed paths name existing
// directories. It has no side effects; the engine must not be started when
// either check fails.
func (r *LaunchRequest) Validate() bool {
	return isDir(r.CorpusDir) && isDir(r.SeedDir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Run validates argv and transfers control to the engine entry point. The
// exit code is always 0 as far as the shim is concerned; once invoked, the
// engine owns subsequent exit behavior.
func (s *Shim) Run(argv []string) int {
	req, ok := ParseArgs(argv)
	if !ok || !req.Validate() {
		s.printUsage(argv)
		return 0
	}

	s.logger.Info("launch request validated",
		zap.String("corpus_dir", req.CorpusDir),
		zap.String("seed_dir", req.SeedDir),
		zap.String("dictionary", req.DictPath),
	)
	s.main(req)
	return 0
}

func (s *Shim) printUsage(argv []string) {
	prog := "fuzzer"
	if len(argv) > 0 && argv[0] != "" {
		prog = argv[0]
	}
	fmt.Fprintln(s.out, "libafl fuzzer instance")
	fmt.Fprintf(s.out, "Syntax: %s [-x dictionary] corpus_dir seed_dir\n", prog)
}

type ShimParams struct {
	fx.In

	Lc         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
	Main       EngineMain
}

// StartShim runs the shim over os.Args once the app is up and shuts the
// process down with the shim's exit code when it returns.
func StartShim(p ShimParams) {
	shim := NewShim(os.Stdout, p.Logger, p.Main)
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				code := shim.Run(os.Args)
				p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
	})
}
