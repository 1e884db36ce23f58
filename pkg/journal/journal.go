package journal

import (
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "time"
)

// SyncRecord captures one full reconciliation sweep for audit and analysis.
type SyncRecord struct {
    Timestamp    time.Time      `json:"timestamp"`
    RunNumber    int            `json:"run_number"`
    DurationMs   int64          `json:"duration_ms"`
    AssetsSynced int            `json:"assets_synced"`
    AssetsFailed int            `json:"assets_failed"`
    Pushed       int            `json:"pushed,omitempty"`
    Pulled       int            `json:"pulled,omitempty"`
    Success      bool           `json:"success"`
    ErrorMessage string         `json:"error_message,omitempty"`
    Extra        map[string]any `json:"extra,omitempty"`
}

// Writer persists sync records to a directory as JSON files (journal style).
type Writer struct {
    dir   string
    seq   int
    nowFn func() time.Time
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
    if dir == "" {
        dir = "journal"
    }
    _ = os.MkdirAll(dir, 0o755)
    return &Writer{dir: dir, nowFn: time.Now}
}

// WriteSync writes a sync record to a timestamped JSON file.
func (w *Writer) WriteSync(rec *SyncRecord) (string, error) {
    if rec == nil {
        return "", fmt.Errorf("journal: nil record")
    }
    if rec.Timestamp.IsZero() {
        rec.Timestamp = w.nowFn()
    }
    w.seq++
    rec.RunNumber = w.seq
    name := fmt.Sprintf("sync_%s_%05d.json", rec.Timestamp.UTC().Format("20060102_150405"), w.seq)
    path := filepath.Join(w.dir, name)
    data, err := json.MarshalIndent(rec, "", "  ")
    if err != nil {
        return "", err
    }
    if err := os.WriteFile(path, data, 0o644); err != nil {
        return "", err
    }
    return path, nil
}
