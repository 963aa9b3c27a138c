package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ListBaseImages returns the names of the regular files directly inside the
// base image directory, sorted.
func (m *Manager) ListBaseImages() ([]string, error) {
	return listBaseImages(m.cfg.BaseImagesDir)
}

func listBaseImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base images directory %s: %w", dir, err)
	}

	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		// Follow symlinks so linked images are listed too.
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		images = append(images, entry.Name())
	}
	sort.Strings(images)
	return images, nil
}
