// Package export round-trips the combined settings+history bundle.
package export

import (
	"encoding/json"
	"fmt"

	"pagechat/internal/history"
	"pagechat/internal/settings"
)

// Bundle 组合导出文件 / Bundle is the combined export document:
// {"settings": <Settings>, "history": <ChatSession[]>}.
type Bundle struct {
	Settings json.RawMessage `json:"settings"`
	History  json.RawMessage `json:"history"`
}

// Export serializes both stores into one document.
func Export(cfg *settings.Store, hist *history.Store) ([]byte, error) {
	settingsJSON, err := cfg.Export()
	if err != nil {
		return nil, err
	}
	historyJSON, err := hist.Export()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(Bundle{
		Settings: settingsJSON,
		History:  historyJSON,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export bundle: %w", err)
	}
	return data, nil
}

// Import applies a combined document. Each section keeps its own validation:
// settings go through the default merge and built-in backfill; history is
// all-or-nothing. A history failure does not roll back settings (the sections
// are independent records).
func Import(data []byte, cfg *settings.Store, hist *history.Store) error {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse import bundle: %w", err)
	}
	if len(bundle.Settings) > 0 {
		if err := cfg.Import(bundle.Settings); err != nil {
			return err
		}
	}
	if len(bundle.History) > 0 {
		if err := hist.Import(bundle.History); err != nil {
			return err
		}
	}
	return nil
}
