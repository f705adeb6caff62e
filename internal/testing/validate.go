package testing

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ContainsNonASCIIPrintable returns true if the string has any
// characters outside ASCII [32..126], i.e., not a standard printable.
func ContainsNonASCIIPrintable(s string) bool {
	for _, r := range s {
		if r < 32 || r > 126 {
			return true
		}
	}
	return false
}

// GroundTruthEntry describes one path expected in an extracted tree. Names are slash separated and
// relative to the extraction root. Size is only compared for files.
type GroundTruthEntry struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"is_directory"`
}

// Validate compares the tree below root against the ground truth stored as JSON at gtPath.
func Validate(root string, gtPath string) error {
	groundTruth, err := LoadGroundTruth(gtPath)
	if err != nil {
		return err
	}
	return ValidateEntries(root, groundTruth)
}

// ValidateEntries compares the tree below root against groundTruth and reports every missing,
// extra or mismatched entry in a single error.
func ValidateEntries(root string, groundTruth []GroundTruthEntry) error {
	actual, err := walkTree(root)
	if err != nil {
		return err
	}

	var problems []string
	for _, gt := range groundTruth {
		got, found := actual[gt.Name]
		if !found {
			problems = append(problems, fmt.Sprintf("missing %s", describe(gt)))
			continue
		}
		delete(actual, gt.Name)
		switch {
		case got.IsDirectory != gt.IsDirectory:
			problems = append(problems, fmt.Sprintf("expected %s, found %s", describe(gt), describe(got)))
		case !gt.IsDirectory && got.Size != gt.Size:
			problems = append(problems, fmt.Sprintf("size of %s is %d, expected %d", gt.Name, got.Size, gt.Size))
		}
	}
	for _, extra := range actual {
		problems = append(problems, fmt.Sprintf("extra %s", describe(extra)))
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("extracted tree does not match the ground truth:\n  %s", strings.Join(problems, "\n  "))
}

func walkTree(root string) (map[string]GroundTruthEntry, error) {
	entries := make(map[string]GroundTruthEntry)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if ContainsNonASCIIPrintable(name) {
			return fmt.Errorf("non-ASCII printable characters in entry: %q", name)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry := GroundTruthEntry{Name: name, IsDirectory: d.IsDir()}
		if !d.IsDir() {
			entry.Size = info.Size()
		}
		entries[name] = entry
		return nil
	})
	return entries, err
}

func describe(e GroundTruthEntry) string {
	if e.IsDirectory {
		return "[DIR] " + e.Name
	}
	return "[FILE] " + e.Name
}

// LoadGroundTruth reads the JSON from a file and unmarshals it into a slice.
func LoadGroundTruth(filePath string) ([]GroundTruthEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entries []GroundTruthEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return entries, nil
}
