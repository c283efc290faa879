package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
)

// tempSuffix marks in-progress downloads. Completed files never carry it.
const tempSuffix = ".part"

// Manager handles local filesystem operations under the output root.
type Manager struct {
	rootDir    string
	bufferSize int
}

// NewManager creates a new filesystem manager rooted at rootDir.
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 8*1024) // 8KB default
}

// NewManagerWithBufferSize creates a new filesystem manager with a custom
// copy buffer size.
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 8 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the output root directory.
func (m *Manager) RootDir() string {
	return m.rootDir
}

// TargetPath returns the local path for a descriptor's relative path.
func (m *Manager) TargetPath(relativePath string) string {
	return filepath.Join(m.rootDir, filepath.FromSlash(relativePath))
}

// EnsureDir ensures the parent directory of a file path exists.
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// FileSize returns the size of a file, or an error if it does not exist.
func (m *Manager) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// WriteFile streams reader content to relativePath under the root. The
// bytes land in a temp file first; the caller promotes the temp file
// onto the final path once it is satisfied with the result, so a failed
// download never leaves a half-written file at the final path.
//
// Filesystem failures come back as *domain.FilesystemError; a failed
// read of the source stream comes back unwrapped, with the partial temp
// file already deleted.
func (m *Manager) WriteFile(relativePath string, reader io.Reader) (string, int64, error) {
	targetPath := m.TargetPath(relativePath)

	if err := m.EnsureDir(targetPath); err != nil {
		return "", 0, &domain.FilesystemError{Op: "mkdir", Path: targetPath, Err: err}
	}

	tempPath := targetPath + tempSuffix
	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, &domain.FilesystemError{Op: "create", Path: tempPath, Err: err}
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		m.DeleteTempFile(tempPath)
		return "", written, fmt.Errorf("failed to stream file: %w", err)
	}

	if err := f.Close(); err != nil {
		m.DeleteTempFile(tempPath)
		return "", written, &domain.FilesystemError{Op: "close", Path: tempPath, Err: err}
	}

	return tempPath, written, nil
}

// Promote renames a completed temp file onto its final path.
func (m *Manager) Promote(tempPath string) (string, error) {
	if filepath.Ext(tempPath) != tempSuffix {
		return "", fmt.Errorf("not a temp file: %s", tempPath)
	}
	targetPath := tempPath[:len(tempPath)-len(tempSuffix)]
	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", &domain.FilesystemError{Op: "rename", Path: tempPath, Err: err}
	}
	return targetPath, nil
}

// DeleteFile removes a file, ignoring already-absent files.
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// DeleteTempFile removes a temporary file, ignoring already-absent files.
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// TotalSize returns the total size of files under the root, temp files
// excluded.
func (m *Manager) TotalSize() (int64, error) {
	var size int64
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) != tempSuffix {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes temp files older than the specified duration,
// leftovers from interrupted runs.
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == tempSuffix {
			if info.ModTime().Before(threshold) {
				if removeErr := os.Remove(path); removeErr == nil {
					count++
				}
			}
		}
		return nil
	})
	return count, err
}
