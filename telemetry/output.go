package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/vectorsim/config"
)

// OutputManager writes run output into one directory: CSV series opened on
// first write, JSON documents, and the effective configuration. A nil
// manager discards everything.
type OutputManager struct {
	dir    string
	files  map[string]*os.File
	header map[string]bool
}

// NewOutputManager creates the output directory. Returns nil if dir is empty
// (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &OutputManager{
		dir:    dir,
		files:  make(map[string]*os.File),
		header: make(map[string]bool),
	}, nil
}

func csvName(name string) string {
	if strings.HasSuffix(name, ".csv") {
		return name
	}
	return name + ".csv"
}

// WriteSeries appends rows (a slice of csv-tagged structs) to name.csv.
// The header is written with the first batch only.
func (om *OutputManager) WriteSeries(name string, rows any) error {
	if om == nil {
		return nil
	}
	name = csvName(name)

	f, ok := om.files[name]
	if !ok {
		var err error
		f, err = os.Create(filepath.Join(om.dir, name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		om.files[name] = f
	}

	if !om.header[name] {
		if err := gocsv.Marshal(rows, f); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		om.header[name] = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// WriteDay appends one agent day to agents.csv.
func (om *OutputManager) WriteDay(stats DayStats) error {
	return om.WriteSeries("agents", []DayStats{stats})
}

// WritePerf appends a performance record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, day int) error {
	return om.WriteSeries("perf", []PerfStatsCSV{stats.ToCSV(day)})
}

// WriteBookmark appends a bookmark to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	return om.WriteSeries("bookmarks", []Bookmark{b})
}

// WriteJSON saves v as indented JSON in name.json.
func (om *OutputManager) WriteJSON(name string, v any) error {
	if om == nil {
		return nil
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, name), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all open CSV files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for name, f := range om.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(om.files, name)
	}
	return firstErr
}
