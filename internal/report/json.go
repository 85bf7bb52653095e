package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// JSONReport is the machine-readable form of a Summary.
type JSONReport struct {
	Name         string            `json:"name"`
	RunID        string            `json:"runId"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	DurationMS   int64             `json:"durationMs"`
	Cancelled    bool              `json:"cancelled"`
	Abandoned    int               `json:"abandoned"`
	PeakInFlight int               `json:"peakInFlight"`
	Throughput   float64           `json:"throughput"`
	Passed       bool              `json:"passed"`
	Snapshot     *metrics.Snapshot `json:"snapshot"`
	Thresholds   []ThresholdResult `json:"thresholds,omitempty"`
}

// NewJSONReport flattens a Summary.
func NewJSONReport(s *Summary) *JSONReport {
	r := s.Result
	return &JSONReport{
		Name:         s.Name,
		RunID:        r.RunID,
		Start:        r.Start,
		End:          r.End,
		DurationMS:   r.Duration().Milliseconds(),
		Cancelled:    r.Cancelled,
		Abandoned:    r.Abandoned,
		PeakInFlight: r.PeakInFlight,
		Throughput:   r.Snapshot.Throughput(),
		Passed:       s.Passed(),
		Snapshot:     r.Snapshot,
		Thresholds:   s.Thresholds,
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewJSONReport(s)); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the report to path.
func WriteJSONFile(path string, s *Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
