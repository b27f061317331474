package recorder

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Recorder captures traffic for later replay. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []TrafficRecord
	stream  io.Writer // optional NDJSON sink
}

// New creates a Recorder. If w is non-nil every record is also written to
// it as a line of JSON when it arrives.
func New(w io.Writer) *Recorder {
	return &Recorder{stream: w}
}

// Record stores rec, assigning an ID if it has none.
func (r *Recorder) Record(rec TrafficRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)

	if r.stream != nil {
		line, err := sonic.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.ID, err)
		}
		if _, err := r.stream.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("streaming record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Records returns a deep copy of everything recorded so far. Callers may
// modify the result, metadata maps included.
func (r *Recorder) Records() []TrafficRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrafficRecord, 0, len(r.records))
	if err := copier.CopyWithOption(&out, r.records, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which cannot happen here.
		panic(fmt.Sprintf("recorder: copying records: %v", err))
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Reset drops every record.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

// ExportJSON writes all records to w as an indented JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	r.mu.Lock()
	records := r.records
	if records == nil {
		records = []TrafficRecord{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	_, err = w.Write(append(data, '\n'))
	return err
}

// ExportFile writes all records to path as a JSON array.
func (r *Recorder) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := r.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadJSON reads traffic records from a JSON array.
func LoadJSON(rd io.Reader) ([]TrafficRecord, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	var records []TrafficRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing records: %w", err)
	}
	return records, nil
}

// LoadFile reads traffic records from a JSON file.
func LoadFile(path string) ([]TrafficRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return LoadJSON(f)
}
