package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSuffix is appended to the index name to form a snapshot file name.
const FileSuffix = ".snapshot.json"

// File is one snapshot read back from disk.
type File struct {
	Name    string
	Payload string
}

// WriteFile atomically writes payload for index name into dir. It writes to a
// .tmp file, syncs it and renames on success.
func WriteFile(dir, name, payload string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := filepath.Join(dir, name+FileSuffix)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	if _, err := f.WriteString(payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing snapshot %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}

// ReadDir returns every snapshot file in dir ordered by index name. A missing
// directory yields no snapshots.
func ReadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot directory: %w", err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading snapshot %s: %w", e.Name(), err)
		}
		files = append(files, File{
			Name:    strings.TrimSuffix(e.Name(), FileSuffix),
			Payload: string(data),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
