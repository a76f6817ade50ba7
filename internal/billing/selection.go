package billing

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Selection is the operator's batch input file.
type Selection struct {
	Fields  Fields   `yaml:",inline"`
	Records []Record `yaml:"records"`
}

// LoadSelection reads a selection file.
func LoadSelection(path string) (*Selection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open selection: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeSelection(f)
}

// DecodeSelection parses a selection document. Unknown keys are rejected so
// typos in field names surface instead of silently producing empty values.
func DecodeSelection(r io.Reader) (*Selection, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sel Selection
	if err := dec.Decode(&sel); err != nil {
		if err == io.EOF {
			return &sel, nil
		}
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return &sel, nil
}
