package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SchemeFile is one scheme source document as stored on disk.
type SchemeFile struct {
	SchemeName  string `json:"scheme_name"`
	Ministry    string `json:"ministry"`
	OfficialURL string `json:"official_url"`
	Text        string `json:"text"`
}

// Entry pairs a parsed scheme file with the theme taken from its directory.
type Entry struct {
	Theme string
	Path  string
	SchemeFile
}

// Load reads a corpus directory laid out as one subdirectory per theme, each
// holding one JSON file per scheme:
//
//	corpus/
//	  benefits/pmegp.json
//	  eligibility/atal-pension-yojana.json
//
// Entries come back sorted by theme then scheme name so repeated runs ingest
// in a stable order. Non-JSON files are skipped.
func Load(root string) ([]Entry, error) {
	themeDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	var entries []Entry
	for _, themeDir := range themeDirs {
		if !themeDir.IsDir() {
			continue
		}
		theme := themeDir.Name()

		files, err := os.ReadDir(filepath.Join(root, theme))
		if err != nil {
			return nil, fmt.Errorf("failed to read theme directory %s: %w", theme, err)
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			path := filepath.Join(root, theme, file.Name())
			entry, err := loadFile(path, theme)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Theme != entries[j].Theme {
			return entries[i].Theme < entries[j].Theme
		}
		return entries[i].SchemeName < entries[j].SchemeName
	})
	return entries, nil
}

func loadFile(path, theme string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file SchemeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Entry{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if strings.TrimSpace(file.SchemeName) == "" {
		return Entry{}, fmt.Errorf("%s: scheme_name is required", path)
	}
	if strings.TrimSpace(file.Text) == "" {
		return Entry{}, fmt.Errorf("%s: text is required", path)
	}

	return Entry{Theme: theme, Path: path, SchemeFile: file}, nil
}
