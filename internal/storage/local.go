// Package storage provides the durable artifact store the pipeline hands
// rendered documents to. The core treats it as a black box returning opaque
// references.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrArtifactInvalid marks a reference resolving outside the artifact root.
var ErrArtifactInvalid = errors.New("artifact invalid")

// Store accepts a binary document and returns a durable reference. Failures
// bubble up as non-retryable within the render stage.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Resolve(ref string) (string, error)
}

// LocalStore keeps artifacts on disk under a single root directory.
// References are paths relative to that root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		trimmed = filepath.Join(os.TempDir(), "pcnpilot_artifacts")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the artifact directory.
func (s *LocalStore) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty artifact %q", name)
	}
	ref := filepath.ToSlash(filepath.Clean(strings.TrimSpace(name)))
	path, err := s.validate(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return ref, nil
}

// Resolve maps a reference back to an absolute path, rejecting anything that
// escapes the artifact root.
func (s *LocalStore) Resolve(ref string) (string, error) {
	path, err := s.validate(ref)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return "", ErrArtifactInvalid
	}
	return path, nil
}

func (s *LocalStore) validate(ref string) (string, error) {
	if s == nil || s.root == "" {
		return "", errors.New("artifact store not initialised")
	}
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", ErrArtifactInvalid
	}
	abs, err := filepath.Abs(filepath.Join(s.root, filepath.FromSlash(trimmed)))
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrArtifactInvalid
	}
	return abs, nil
}
