package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type RunRecord struct {
	ID        int
	Game      string
	Converged bool
	RunMetric
}

type SweepRecord struct {
	Run int // ID of the RunRecord
	SweepMetric
}

type ValueRecord struct {
	Run   int // ID of the RunRecord
	State string
	Agent string
	Value float64
}

type Writer struct {
	runID   string
	baseDir string
}

// NewWriter creates a fresh run directory under dir, named by a random run ID.
func NewWriter(dir string) (*Writer, error) {
	runID := uuid.NewString()
	baseDir := filepath.Join(dir, runID)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		runID:   runID,
		baseDir: baseDir,
	}, nil
}

func (w *Writer) RunID() string {
	return w.runID
}

func (w *Writer) Dir() string {
	return w.baseDir
}

func (w *Writer) WriteRuns(records []RunRecord) error {
	header := []string{"id", "game", "operator", "agents", "states", "start_time", "end_time", "duration", "sweeps", "backups", "max_change", "converged"}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			strconv.Itoa(r.ID),
			r.Game,
			r.Operator,
			strconv.Itoa(r.Agents),
			strconv.Itoa(r.States),
			r.StartTime.Format(time.RFC3339),
			r.EndTime.Format(time.RFC3339),
			r.Duration.String(),
			strconv.Itoa(len(r.Sweeps)),
			strconv.Itoa(r.Backups),
			formatFloat(r.MaxChange),
			strconv.FormatBool(r.Converged),
		}
	}
	return w.write("runs.csv", header, rows)
}

func (w *Writer) WriteSweeps(records []SweepRecord) error {
	header := []string{"run", "sweep", "backups", "max_change", "duration"}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			strconv.Itoa(r.Run),
			strconv.Itoa(r.Sweep),
			strconv.Itoa(r.Backups),
			formatFloat(r.MaxChange),
			r.Duration.String(),
		}
	}
	return w.write("sweeps.csv", header, rows)
}

func (w *Writer) WriteValues(records []ValueRecord) error {
	header := []string{"run", "state", "agent", "value"}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{strconv.Itoa(r.Run), r.State, r.Agent, formatFloat(r.Value)}
	}
	return w.write("values.csv", header, rows)
}

// Sweeps tags every sweep of run with the run's ID.
func Sweeps(run RunRecord) []SweepRecord {
	records := make([]SweepRecord, len(run.Sweeps))
	for i, s := range run.Sweeps {
		records[i] = SweepRecord{Run: run.ID, SweepMetric: s}
	}
	return records
}

func (w *Writer) write(name string, header []string, rows [][]string) error {
	path := filepath.Join(w.baseDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)

	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	for _, row := range rows {
		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write %s row: %w", name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
