package seeds

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"fuzzshim/internal/types"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{
		logger:     zap.NewNop(),
		seedFolder: t.TempDir(),
		seedChan:   make(chan types.SeedMessage, 8),
		done:       make(chan struct{}),
	}
}

func TestProcessSeedStoresAndSyncs(t *testing.T) {
	m := testManager(t)
	corpusDir := t.TempDir()

	seedFile := filepath.Join(t.TempDir(), "id_0001")
	if err := os.WriteFile(seedFile, []byte("interesting"), 0644); err != nil {
		t.Fatal(err)
	}

	run := &types.RunContext{RunID: "run-1", Target: "target", CorpusDir: corpusDir}
	if err := m.processSeed(types.SeedMessage{SeedFile: seedFile, Run: run}); err != nil {
		t.Fatalf("processSeed failed: %v", err)
	}

	stored, err := os.ReadDir(filepath.Join(m.seedFolder, "target"))
	if err != nil || len(stored) != 1 {
		t.Fatalf("seed store entries = %v, err = %v", stored, err)
	}
	synced, err := os.ReadDir(corpusDir)
	if err != nil || len(synced) != 1 {
		t.Fatalf("corpus dir entries = %v, err = %v", synced, err)
	}

	got, _ := os.ReadFile(filepath.Join(corpusDir, synced[0].Name()))
	if string(got) != "interesting" {
		t.Error("synced seed content mismatch")
	}
}

func TestProcessSeedMissingFile(t *testing.T) {
	m := testManager(t)
	run := &types.RunContext{RunID: "run-1", Target: "t", CorpusDir: t.TempDir()}
	if err := m.processSeed(types.SeedMessage{SeedFile: "/nonexistent", Run: run}); err == nil {
		t.Error("expected error for unreadable seed file")
	}
}

func TestRegisterSeedChanForwards(t *testing.T) {
	m := testManager(t)
	go m.start()

	src := make(chan types.SeedMessage, 1)
	m.RegisterSeedChan(src)

	seedFile := filepath.Join(t.TempDir(), "s")
	if err := os.WriteFile(seedFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	run := &types.RunContext{RunID: "r", Target: "t", CorpusDir: t.TempDir()}
	src <- types.SeedMessage{SeedFile: seedFile, Run: run}
	close(src)

	m.seedChanWg.Wait()
	close(m.seedChan)
	<-m.done

	stored, err := os.ReadDir(filepath.Join(m.seedFolder, "t"))
	if err != nil || len(stored) != 1 {
		t.Fatalf("seed not forwarded through channel: %v, err %v", stored, err)
	}
}
