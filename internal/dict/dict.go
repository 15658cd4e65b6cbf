package dict

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

type Merger struct {
	logger *zap.Logger
}

func NewMerger(logger *zap.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge combines AFL-format dictionary files into one deduplicated
// temporary file and returns its path. Blank lines and comments are
// dropped. Returns an error when no usable entries remain.
func (m *Merger) Merge(paths ...string) (string, error) {
	var mergedLines []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read dict file %s: %w", path, err)
		}
		mergedLines = append(mergedLines, strings.Split(string(content), "\n")...)
	}

	lineSet := make(map[string]struct{})
	var finalLines []string
	for _, line := range mergedLines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := lineSet[line]; !ok {
			lineSet[line] = struct{}{}
			finalLines = append(finalLines, line)
		}
	}

	if len(finalLines) == 0 {
		return "", fmt.Errorf("no dictionary entries found in %d files", len(paths))
	}

	tmpFile, err := os.CreateTemp("", "merged_dict_*.dict")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dict file: %w", err)
	}
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(strings.Join(finalLines, "\n")); err != nil {
		return "", fmt.Errorf("failed to write merged dict file: %w", err)
	}

	m.logger.Debug("merged dictionaries",
		zap.Int("sources", len(paths)),
		zap.Int("entries", len(finalLines)),
		zap.String("path", tmpFile.Name()))

	return tmpFile.Name(), nil
}
