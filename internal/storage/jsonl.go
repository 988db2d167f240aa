package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fileswap/internal/model"
)

// JsonlAuditLog appends executed trades to a JSONL file. It is a secondary
// sink for offline audit, not a query surface; the TradeLedger remains the
// record of truth.
type JsonlAuditLog struct {
	path string
	mu   sync.Mutex
}

func NewJsonlAuditLog(path string) *JsonlAuditLog {
	return &JsonlAuditLog{path: path}
}

// Append writes one trade as a JSON line.
func (l *JsonlAuditLog) Append(trade model.Trade) error {
	dir := filepath.Dir(l.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write trade: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}

	return nil
}
