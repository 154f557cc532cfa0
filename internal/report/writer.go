package report

import (
	"encoding/json"
	"fmt"

	"github.com/nao1215/filegrab/internal/state"
)

// WriteJSON marshals doc with indentation and writes it atomically so
// a reader never sees a half-written report.
func WriteJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := state.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
