package monitoring

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResultWriter is the per-run result stream: one line per material state
// transition, format "<time_ms>;<node_id>;<op>;<phase>" (node id -1 for
// records emitted by the scheduler itself).
//
// Plain buffered lines rather than a structured logger: downstream analysis
// scripts split on ';' and any envelope would have to be stripped again.
type ResultWriter struct {
	mu   sync.Mutex
	w    *bufio.Writer
	file *os.File
}

// ResultFileName derives the sink name for one sweep entry:
// result_<nodes>_<requests>_<omission*100>.log.
func ResultFileName(nodes int, requests uint32, omission float64) string {
	return fmt.Sprintf("result_%d_%d_%d.log", nodes, requests, int(omission*100))
}

// OpenResultWriter creates (truncating) the result file for one cluster size
// under dir.
func OpenResultWriter(dir string, nodes int, requests uint32, omission float64) (*ResultWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, ResultFileName(nodes, requests, omission))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open result sink %s: %w", path, err)
	}
	return &ResultWriter{w: bufio.NewWriter(f), file: f}, nil
}

// Record appends one result line. Safe for concurrent use, though in
// practice only the simulation loop writes.
func (r *ResultWriter) Record(timeMillis uint64, nodeID int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%d;%d;%s\n", timeMillis, nodeID, message)
}

// Close flushes buffered lines and closes the file.
func (r *ResultWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// NopResults discards records; used when log.result is disabled.
type NopResults struct{}

func (NopResults) Record(uint64, int, string) {}
