package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"inferload/internal/report"
)

const (
	// BucketRuns holds compact per-run metadata, keyed by start time so a
	// cursor walk is chronological.
	BucketRuns = "runs"
	// BucketReports holds the full report JSON, keyed by run id.
	BucketReports = "reports"
)

// RunMeta is the light listing record kept alongside the full report.
type RunMeta struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Endpoint      string    `json:"endpoint"`
	Model         string    `json:"model"`
	Users         int       `json:"users"`
	TotalRequests int       `json:"total_requests"`
	SuccessRate   float64   `json:"success_rate"`
	P95Seconds    float64   `json:"p95_seconds"`
}

// History is the on-disk archive of past runs.
type History struct {
	db *bbolt.DB
}

// OpenHistory opens (creating if needed) <dir>/history.db.
func OpenHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, "history.db"), 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(BucketReports))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// Save archives a finished run: metadata under its start time, the full
// report under its run id.
func (h *History) Save(rep *report.Report) error {
	meta := RunMeta{
		RunID:         rep.Summary.RunID,
		StartedAt:     rep.Summary.StartedAt,
		Endpoint:      rep.Config.Endpoint,
		Model:         rep.Config.ModelName,
		Users:         rep.Config.ConcurrentUsers,
		TotalRequests: rep.Summary.TotalRequests,
		SuccessRate:   rep.Summary.SuccessRate,
	}
	if rep.Summary.Latency != nil {
		meta.P95Seconds = rep.Summary.Latency.P95
	}

	return h.db.Update(func(tx *bbolt.Tx) error {
		metaData, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		repData, err := json.Marshal(rep)
		if err != nil {
			return err
		}

		key := []byte(meta.StartedAt.UTC().Format(time.RFC3339Nano) + "_" + meta.RunID)
		if err := tx.Bucket([]byte(BucketRuns)).Put(key, metaData); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketReports)).Put([]byte(meta.RunID), repData)
	})
}

// List returns run metadata, newest first.
func (h *History) List() ([]RunMeta, error) {
	var items []RunMeta
	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item RunMeta
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Get loads the full report for a run id.
func (h *History) Get(runID string) (*report.Report, error) {
	var rep report.Report
	err := h.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketReports)).Get([]byte(runID))
		if v == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		return json.Unmarshal(v, &rep)
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
