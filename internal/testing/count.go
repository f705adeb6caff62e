package testing

import (
	"io/fs"
	"path/filepath"
)

// GetFileAndFolderCounts counts the directories below root and the regular files in the tree.
func GetFileAndFolderCounts(root string) (int, int, error) {
	var folderCount, fileCount int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			folderCount++
		} else if d.Type().IsRegular() {
			fileCount++
		}
		return nil
	})
	return folderCount, fileCount, err
}
