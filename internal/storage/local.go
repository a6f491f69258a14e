package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidRef = errors.New("file reference escapes storage directory")

// LocalFileStore хранит загруженные файлы импорта на диске
type LocalFileStore struct {
	BaseDir string
}

func NewLocalFileStore(baseDir string) *LocalFileStore {
	if baseDir == "" {
		baseDir = "."
	}
	return &LocalFileStore{BaseDir: baseDir}
}

// Save записывает содержимое под ключом key и возвращает ссылку на файл
func (s *LocalFileStore) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	_ = ctx

	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store file %s: %w", key, err)
	}
	return key, nil
}

func (s *LocalFileStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	_ = ctx

	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	return file, nil
}

// Remove удаляет файл; отсутствие файла ошибкой не считается
func (s *LocalFileStore) Remove(ctx context.Context, ref string) error {
	_ = ctx

	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file %s: %w", path, err)
	}
	return nil
}

func (s *LocalFileStore) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.BaseDir, clean), nil
}
