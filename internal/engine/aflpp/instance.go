package aflpp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"fuzzshim/pkg/telemetry"
)

// Instance is one afl-fuzz process in a campaign.
type Instance struct {
	Name      string // -M/-S name
	Mode      InstanceMode
	InputDir  string // -i <inputDir>
	OutputDir string // -o <outputDir>
	DictPath  string // merged dictionary, empty when none
	Timeout   int    // per-exec timeout in ms
	Target    string // path to the target binary
	Env       []string

	logger *zap.Logger
}

type InstanceMode int

const (
	Master InstanceMode = iota
	Secondary
)

// Fuzz launches the afl-fuzz process and blocks until it exits, the
// timeout is reached, or the context is cancelled:
//
//  1. Starts afl-fuzz with the instance's args and environment.
//  2. If the process exits before `timeout`, returns immediately.
//  3. If the `timeout` elapses, sends a SIGINT to request graceful
//     shutdown, then waits for the process to exit or for `ctx` to be done.
//  4. If `ctx` is cancelled at any time, CommandContext ensures the
//     process is killed (SIGKILL).
//
// Guarantees the process is not left running once this method returns.
func (m Instance) Fuzz(ctx context.Context, timeout time.Duration) {
	tracer := telemetry.FromContext(ctx)
	aflTracer := tracer.Spawn("running afl-fuzz " + m.Name)
	aflTracer.Start()
	defer aflTracer.End()

	m.fuzz(ctx, timeout)

	statsPath := path.Join(m.OutputDir, m.Name, "fuzzer_stats")
	data, err := os.ReadFile(statsPath)
	if err != nil {
		aflTracer.SetStatus(codes.Error, "failed to read fuzzer stats")
		m.logger.Error("failed to read fuzzer stats", zap.Error(err))
		return
	}

	attrs, err := parseFuzzerStats(bytes.NewReader(data), m.logger)
	if err != nil {
		m.logger.Error("failed to parse fuzzer stats", zap.Error(err))
		return
	}
	aflTracer.WithAttributes(attrs)
}

// parseFuzzerStats reads "key : value" pairs written by afl-fuzz. Returns
// an error only on unexpected I/O errors.
func parseFuzzerStats(r io.Reader, logger *zap.Logger) (telemetry.SpanAttributes, error) {
	attrs := make(telemetry.SpanAttributes)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		rawKey := strings.TrimSpace(parts[0])
		rawValue := strings.TrimSpace(parts[1])

		logger.Debug("parsed fuzzer stat", zap.String("key", rawKey), zap.String("value", rawValue))

		attrs["fuzzer.afl."+rawKey] = rawValue
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return attrs, nil
}

func (m Instance) fuzz(ctx context.Context, timeout time.Duration) {
	cmd := exec.CommandContext(ctx, "afl-fuzz", m.buildArgs()...)
	cmd.Env = append(os.Environ(), m.Env...)

	done := make(chan struct{})
	go func() {
		m.logger.Info("running afl-fuzz", zap.String("command", cmd.String()))
		_ = cmd.Run() // ignore error; process exit is signaled via channel
		close(done)
	}()

	timer := time.NewTicker(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return

	case <-timer.C:
		// Graceful-shutdown window elapsed; ask afl-fuzz to wind down.
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGINT)
		}
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		}

	case <-ctx.Done():
		return
	}
}

func (m Instance) buildArgs() []string {
	args := []string{"-i", m.InputDir, "-o", m.OutputDir}

	switch m.Mode {
	case Master:
		args = append(args, "-M", m.Name)
	case Secondary:
		args = append(args, "-S", m.Name)
	}

	if m.Timeout <= 0 {
		m.Timeout = 5000
	}
	args = append(args, "-t", fmt.Sprintf("%d+", m.Timeout))

	if m.DictPath != "" {
		args = append(args, "-x", m.DictPath)
	}

	args = append(args, "--", m.Target)
	return args
}

func defaultAFLEnv() []string {
	return []string{
		"AFL_NO_UI=1",
		"AFL_I_DONT_CARE_ABOUT_MISSING_CRASHES=1",
		"AFL_SKIP_CPUFREQ=1",
		"AFL_TRY_AFFINITY=1",
		"AFL_FAST_CAL=1",
		"AFL_CMPLOG_ONLY_NEW=1",
		"AFL_FORKSRV_INIT_TMOUT=30000",
		"AFL_IGNORE_PROBLEMS=1",
		"AFL_IGNORE_SEED_PROBLEMS=1", // skip crashing seeds instead of exiting
		"AFL_IGNORE_UNKNOWN_ENVS=1",
	}
}

// masterAFLEnv adds AFL_FINAL_SYNC so the master performs a final import
// of test cases when terminating, leaving a single complete queue.
func masterAFLEnv() []string {
	return append(defaultAFLEnv(), "AFL_FINAL_SYNC=1")
}
