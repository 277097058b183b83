package service

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var allowedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// FileService owns the local upload and results directories. Uploaded files
// are transient working copies named by generated id; anything older than the
// cleanup horizon is fair game for removal.
type FileService struct {
	uploadDir  string
	resultsDir string
}

func NewFileService(uploadDir, resultsDir string) *FileService {
	return &FileService{
		uploadDir:  uploadDir,
		resultsDir: resultsDir,
	}
}

// EnsureDirs creates the storage directories if missing.
func (s *FileService) EnsureDirs() error {
	for _, dir := range []string{s.uploadDir, s.resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// AllowedExtension reports whether the filename has a supported extension.
func AllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SaveUpload stores an uploaded file under a fresh id, preserving the
// extension so the loader can dispatch on it later.
func (s *FileService) SaveUpload(filename string, data []byte) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", "", fmt.Errorf("unsupported file type %q (use .csv or .xlsx)", ext)
	}

	fileID := uuid.New().String()
	path := filepath.Join(s.uploadDir, fileID+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to save upload: %w", err)
	}
	return fileID, path, nil
}

// FindUpload resolves a file id back to its on-disk path. The id must be a
// UUID, which also keeps path traversal out of the lookup.
func (s *FileService) FindUpload(fileID string) (string, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return "", fmt.Errorf("invalid file id")
	}
	for ext := range allowedExtensions {
		path := filepath.Join(s.uploadDir, fileID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("file %s not found (it may have been cleaned up)", fileID)
}

// ResultPath returns the CSV path for a result id.
func (s *FileService) ResultPath(resultID string) string {
	return filepath.Join(s.resultsDir, resultID+".csv")
}

// FindResult resolves a result id to its CSV file.
func (s *FileService) FindResult(resultID string) (string, error) {
	if _, err := uuid.Parse(resultID); err != nil {
		return "", fmt.Errorf("invalid result id")
	}
	path := s.ResultPath(resultID)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("result %s not found", resultID)
	}
	return path, nil
}

// ResolveResultFile returns the path of a named file inside the results dir,
// rejecting anything that would escape it.
func (s *FileService) ResolveResultFile(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid filename")
	}
	path := filepath.Join(s.resultsDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s not found", filename)
	}
	return path, nil
}

// CleanupStale removes upload and result files older than maxAge and returns
// the number removed. Called at startup and from the periodic sweeper.
func (s *FileService) CleanupStale(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, dir := range []string{s.uploadDir, s.resultsDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
					removed++
				}
			}
		}
	}

	if removed > 0 {
		log.Printf("Cleaned up %d stale files", removed)
	}
	return removed
}
