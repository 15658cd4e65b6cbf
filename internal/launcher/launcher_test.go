package launcher

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestParseArgsShapes(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		ok   bool
	}{
		{"no args", []string{"prog"}, false},
		{"two args", []string{"prog", "corpus"}, false},
		{"three args", []string{"prog", "corpus", "seeds"}, true},
		{"four args", []string{"prog", "-x", "dict", "corpus"}, false},
		{"five args with -x", []string{"prog", "-x", "dict", "corpus", "seeds"}, true},
		{"five args wrong flag", []string{"prog", "-y", "dict", "corpus", "seeds"}, false},
		{"five args flag in wrong slot", []string{"prog", "dict", "-x", "corpus", "seeds"}, false},
		{"six args", []string{"prog", "-x", "dict", "corpus", "seeds", "extra"}, false},
		{"empty vector", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := ParseArgs(tt.argv)
			if ok != tt.ok {
				t.Fatalf("ParseArgs(%v) ok = %v, want %v", tt.argv, ok, tt.ok)
			}
			if !ok {
				return
			}
			if req.CorpusDir != "corpus" || req.SeedDir != "seeds" {
				t.Errorf("positional dirs misparsed: %+v", req)
			}
			if len(tt.argv) == 5 && req.DictPath != "dict" {
				t.Errorf("dictionary misparsed: %+v", req)
			}
			if len(tt.argv) == 3 && req.DictPath != "" {
				t.Errorf("dictionary set without -x: %+v", req)
			}
		})
	}
}

func TestRunMalformedPrintsUsage(t *testing.T) {
	corpus := t.TempDir()
	seeds := t.TempDir()

	vectors := [][]string{
		{"prog"},
		{"prog", corpus},
		{"prog", corpus, seeds, "extra"},
		{"prog", "-y", "dict", corpus, seeds},
	}

	for _, argv := range vectors {
		var out bytes.Buffer
		invoked := 0
		shim := NewShim(&out, zap.NewNop(), func(req *LaunchRequest) { invoked++ })

		if code := shim.Run(argv); code != 0 {
			t.Errorf("Run(%v) = %d, want 0", argv, code)
		}
		if invoked != 0 {
			t.Errorf("Run(%v) invoked the engine", argv)
		}
		if !strings.Contains(out.String(), "libafl fuzzer instance") {
			t.Errorf("Run(%v) did not print the usage banner: %q", argv, out.String())
		}
		if !strings.Contains(out.String(), "[-x dictionary] corpus_dir seed_dir") {
			t.Errorf("Run(%v) did not print the syntax line: %q", argv, out.String())
		}
	}
}

func TestRunMissingDirsPrintsUsage(t *testing.T) {
	corpus := t.TempDir()
	seeds := t.TempDir()
	file := corpus + "/not_a_dir"
	if err := writeFile(file); err != nil {
		t.Fatal(err)
	}

	vectors := [][]string{
		{"prog", corpus, seeds + "/missing"},
		{"prog", corpus + "/missing", seeds},
		{"prog", corpus, file},
		{"prog", "-x", "dict", file, seeds},
	}

	for _, argv := range vectors {
		var out bytes.Buffer
		invoked := 0
		shim := NewShim(&out, zap.NewNop(), func(req *LaunchRequest) { invoked++ })

		if code := shim.Run(argv); code != 0 {
			t.Errorf("Run(%v) = %d, want 0", argv, code)
		}
		if invoked != 0 {
			t.Errorf("Run(%v) invoked the engine despite missing dirs", argv)
		}
		if out.Len() == 0 {
			t.Errorf("Run(%v) printed no usage", argv)
		}
	}
}

func TestRunValidInvokesEngineOnce(t *testing.T) {
	corpus := t.TempDir()
	seeds := t.TempDir()

	var out bytes.Buffer
	invoked := 0
	var got *LaunchRequest
	shim := NewShim(&out, zap.NewNop(), func(req *LaunchRequest) {
		invoked++
		got = req
	})

	if code := shim.Run([]string{"prog", corpus, seeds}); code != 0 {
		t.Errorf("Run = %d, want 0", code)
	}
	if invoked != 1 {
		t.Fatalf("engine invoked %d times, want 1", invoked)
	}
	if got.CorpusDir != corpus || got.SeedDir != seeds || got.DictPath != "" {
		t.Errorf("request = %+v", got)
	}
	if out.Len() != 0 {
		t.Errorf("usage printed on valid invocation: %q", out.String())
	}
}

func TestRunValidWithDictionary(t *testing.T) {
	corpus := t.TempDir()
	seeds := t.TempDir()

	invoked := 0
	var got *LaunchRequest
	shim := NewShim(&bytes.Buffer{}, zap.NewNop(), func(req *LaunchRequest) {
		invoked++
		got = req
	})

	// The dictionary path is not validated by the shim; the engine decides
	// what to do with it.
	shim.Run([]string{"prog", "-x", "tokens.dict", corpus, seeds})
	if invoked != 1 {
		t.Fatalf("engine invoked %d times, want 1", invoked)
	}
	if got.DictPath != "tokens.dict" {
		t.Errorf("DictPath = %q", got.DictPath)
	}
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0644)
}
