package harness

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// YAMLTarget is the default wired parser target. It consumes the framed
// buffer the way a string-based parser would: content ends at the first
// terminator, anything past it is never read.
type YAMLTarget struct{}

type yamlDocument struct {
	root *yaml.Node
}

func (d *yamlDocument) Release() {
	d.root = nil
}

func (t *YAMLTarget) Parse(buf []byte) (Document, error) {
	if len(buf) == 0 {
		return nil, errors.New("unframed empty buffer")
	}

	end := bytes.IndexByte(buf, Terminator)
	if end < 0 {
		end = len(buf)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(buf[:end], &root); err != nil {
		return nil, err
	}
	return &yamlDocument{root: &root}, nil
}
