package services

import (
	"io/fs"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
}

// LocateArtifact finds the rendered video inside dir. Files named
// "{entry}_*" win over any other video file; within each class the first
// match in lexical walk order is taken.
func LocateArtifact(dir, entry string) (string, error) {
	prefix := entry + "_"
	var preferred, fallback string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if strings.HasPrefix(d.Name(), prefix) {
			preferred = path
			return fs.SkipAll
		}
		if fallback == "" {
			fallback = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if preferred != "" {
		return preferred, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", &ArtifactNotFoundError{Dir: dir, Entry: entry}
}
