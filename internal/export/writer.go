package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/estimator"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
)

var header = []string{
	"timestamp",
	"work_bw", "entertain_bw",
	"work_lat", "entertain_lat",
	"work_loss", "entertain_loss",
	"action", "action_name",
	"reward",
}

// Writer appends one CSV row per control decision, producing a trace that
// can be replayed or analyzed offline. Rows are flushed as they are
// written so a crash loses at most the row in flight.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// NewWriter opens (or creates) the trace file. The header row is written
// only when the file starts empty, so restarts append cleanly.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	w := &Writer{file: f, csv: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write trace header: %w", err)
		}
		w.csv.Flush()
	}

	return w, nil
}

// Record appends one decision row
func (w *Writer) Record(ts time.Time, obs estimator.ClassObservation, action qos.Action, reward float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{
		ts.UTC().Format(time.RFC3339),
		formatFloat(obs.WorkBandwidthMbps),
		formatFloat(obs.EntertainBandwidthMbps),
		formatFloat(obs.WorkLatencyMs),
		formatFloat(obs.EntertainLatencyMs),
		formatFloat(obs.WorkLossRatio),
		formatFloat(obs.EntertainLossRatio),
		strconv.Itoa(int(action)),
		action.String(),
		formatFloat(reward),
	}
	if err := w.csv.Write(row); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the trace file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
