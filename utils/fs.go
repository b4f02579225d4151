package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileOperations provides file system utilities over an afero filesystem
type FileOperations struct {
	fs afero.Fs
}

// NewFileOperations creates a FileOperations on the OS filesystem
func NewFileOperations() *FileOperations {
	return NewFileOperationsWithFs(afero.NewOsFs())
}

// NewFileOperationsWithFs creates a FileOperations on fs
func NewFileOperationsWithFs(fs afero.Fs) *FileOperations {
	return &FileOperations{fs: fs}
}

// Open opens a file for reading along with its size
func (f *FileOperations) Open(path string) (afero.File, int64, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return file, info.Size(), nil
}

// ReadFile reads a whole file
func (f *FileOperations) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// WriteFile writes data to path, creating parent directories as needed
func (f *FileOperations) WriteFile(path string, data []byte) error {
	if err := f.EnsureDir(path); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, path, data, 0o644)
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return f.fs.MkdirAll(dir, 0o755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := f.fs.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
