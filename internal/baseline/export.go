package baseline

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// exportVersion is bumped whenever the document layout changes.
const exportVersion = 1

// Document is the JSON layout used by Export and Import.
type Document struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Baselines  []Baseline `json:"baselines"`
}

// Export writes bs to w as an indented JSON document, sorted by metric name.
func Export(w io.Writer, bs []Baseline, now time.Time) error {
	sorted := append([]Baseline(nil), bs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Metric < sorted[j].Metric })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{Version: exportVersion, ExportedAt: now, Baselines: sorted}); err != nil {
		return fmt.Errorf("baseline: export: %w", err)
	}
	return nil
}

// Import reads a document written by Export. Every baseline is validated;
// the first invalid entry aborts the import.
func Import(r io.Reader) ([]Baseline, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("baseline: import: decode: %w", err)
	}
	if doc.Version != exportVersion {
		return nil, fmt.Errorf("baseline: import: unsupported version %d", doc.Version)
	}
	for i, b := range doc.Baselines {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("baseline: import: baselines[%d]: %w", i, err)
		}
	}
	return doc.Baselines, nil
}
