// Package entry holds the process entry points a fuzz target binary can
// override. The default registrations play the role of weak symbols: they
// stand until the linked target supplies its own, and the single-input
// default turns a missing target into a loud runtime failure instead of a
// silent no-op.
package entry

import (
	"fmt"
	"os"
	"sync"

	"fuzzshim/internal/launcher"
)

// EngineMainFunc runs the engine loop for a validated launch request. Under
// normal operation it does not return until the engine exits.
type EngineMainFunc func(req *launcher.LaunchRequest)

// TestOneInputFunc is the single-input calling convention shared by fuzzing
// engines and targets. The return value is conventionally 0 for "continue".
type TestOneInputFunc func(data []byte) int

var (
	mu           sync.Mutex
	engineMain   EngineMainFunc
	testOneInput TestOneInputFunc

	exit = os.Exit // swapped out in tests
)

// SetEngineMain registers the engine entry point. The last registration
// wins, mirroring a strong symbol overriding the weak default.
func SetEngineMain(fn EngineMainFunc) {
	mu.Lock()
	defer mu.Unlock()
	engineMain = fn
}

// SetTestOneInput registers the single-input target.
func SetTestOneInput(fn TestOneInputFunc) {
	mu.Lock()
	defer mu.Unlock()
	testOneInput = fn
}

// EngineMain hands control to the registered engine. With no engine wired
// in, the hand-off symbol is unresolved and the process aborts.
func EngineMain(req *launcher.LaunchRequest) {
	mu.Lock()
	fn := engineMain
	mu.Unlock()

	if fn == nil {
		fmt.Fprintln(os.Stderr, "fuzzshim - no engine entry point registered! Wiring error?")
		exit(1)
		return
	}
	fn(req)
}

// TestOneInput invokes the registered target. The default behavior when no
// target was registered is to abort with a diagnostic: a binary built
// without a target would otherwise fuzz nothing, and that misconfiguration
// must surface immediately.
func TestOneInput(data []byte) int {
	mu.Lock()
	fn := testOneInput
	mu.Unlock()

	if fn == nil {
		fmt.Fprintln(os.Stderr, "fuzzshim - no test input function registered! Wiring error?")
		exit(1)
		return 0
	}
	return fn(data)
}

// Registered reports whether a single-input target has been wired in.
func Registered() bool {
	mu.Lock()
	defer mu.Unlock()
	return testOneInput != nil
}
