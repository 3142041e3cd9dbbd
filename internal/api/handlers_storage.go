package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// getStorageInfo describes the open ledger file and the other ledgers kept
// next to it.
func (h *handler) getStorageInfo(w http.ResponseWriter, r *http.Request) {
	dbPath := h.core.DBPath()
	dataDir := filepath.Dir(dbPath)
	dbName := filepath.Base(dbPath)

	var size int64
	if info, err := os.Stat(dbPath); err == nil {
		size = info.Size()
	}
	available, err := listDBFiles(dataDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list storage files: %w", err).Error())
		return
	}
	if !containsString(available, dbName) {
		available = append([]string{dbName}, available...)
	}

	writeJSON(w, http.StatusOK, storageInfoResponse{
		DBName:    dbName,
		DBPath:    dbPath,
		DataDir:   dataDir,
		SizeBytes: size,
		Available: available,
	})
}

func listDBFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(filepath.Ext(name), ".db") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
