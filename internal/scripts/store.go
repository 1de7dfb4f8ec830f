package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	SourceExt   = ".mq5"
	ArtifactExt = ".ex5"

	maxNameLength = 128
)

var ErrInvalidName = errors.New("invalid script name")

var validName = regexp.MustCompile(`^[A-Za-z0-9_\-][A-Za-z0-9 _.\-]*$`)

// ValidateName accepts plain file names only, so a name can never point outside the scripts directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidName, maxNameLength)
	}
	if name == "." || name == ".." || !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// BaseName strips a source or artifact extension, Foo.mq5 and Foo.ex5 both become Foo.
func BaseName(name string) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, SourceExt) || strings.EqualFold(ext, ArtifactExt) {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// Store writes scripts into a single directory and locates their compiled artifacts.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the scripts directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}
	return nil
}

// Path returns the location of a script file after validating its name.
func (s *Store) Path(filename string) (string, error) {
	if err := ValidateName(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}

// Write stores content under filename, replacing any existing file of the same name.
// The content lands in a temporary file first and is renamed into place.
func (s *Store) Write(filename, content string) (string, error) {
	path, err := s.Path(filename)
	if err != nil {
		return "", err
	}

	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	tmpPath := filepath.Join(s.dir, "."+filename+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write script: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to replace script: %w", err)
	}

	return path, nil
}

// ArtifactPath returns where the compiler leaves the artifact for a script name.
func (s *Store) ArtifactPath(name string) (string, error) {
	base := BaseName(name)
	if err := ValidateName(base); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, base+ArtifactExt), nil
}

// ArtifactExists reports whether the artifact for name is present as a regular file.
func (s *Store) ArtifactExists(name string) (string, bool, error) {
	path, err := s.ArtifactPath(name)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("failed to check artifact: %w", err)
	}

	return path, info.Mode().IsRegular(), nil
}
