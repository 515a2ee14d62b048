package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"inferload/internal/report"
)

// WriteJSON persists the full report. An empty path picks a timestamped
// default in the working directory. The resolved path is returned.
func WriteJSON(rep *report.Report, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("load_test_results_%d.json", time.Now().Unix())
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
