// Package modelstore locates Tesseract's trained language data on disk.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const suffix = ".traineddata"

var (
	// ErrNotFound is wrapped by all errors reporting missing model data
	ErrNotFound = errors.New("model data not found")
	errNoLang   = errors.New("no language given")
)

// Store is a directory containing <lang>.traineddata files
type Store struct {
	Dir string
}

// New returns a Store for dir. The directory is not checked until Resolve is called.
func New(dir string) Store {
	return Store{Dir: dir}
}

// Resolve checks that the store's directory exists and that every
// '+'-separated language in langs has trained data in it.
// It returns the absolute directory path.
func (s Store) Resolve(langs string) (string, error) {
	if s.Dir == "" {
		return "", fmt.Errorf("%w: models directory not configured", ErrNotFound)
	}
	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNotFound, dir)
	}
	codes := Split(langs)
	if len(codes) == 0 {
		return "", errNoLang
	}
	for _, code := range codes {
		if err := checkCode(code); err != nil {
			return "", err
		}
		f, err := os.Open(filepath.Join(dir, code+suffix))
		if err != nil {
			return "", fmt.Errorf("%w: no trained data for language '%s' in %s", ErrNotFound, code, dir)
		}
		f.Close()
	}
	return dir, nil
}

// Languages lists all languages with trained data in the store, sorted
func (s Store) Languages() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		langs = append(langs, strings.TrimSuffix(e.Name(), suffix))
	}
	slices.Sort(langs)
	return langs, nil
}

// Split splits a '+'-separated list of languages, dropping empty elements
func Split(langs string) []string {
	var codes []string
	for _, c := range strings.Split(langs, "+") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// checkCode rejects codes that would escape the store's directory
func checkCode(code string) error {
	if strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return fmt.Errorf("%w: invalid language code '%s'", ErrNotFound, code)
	}
	return nil
}

// IsNoLanguage reports whether err was caused by an empty language list
func IsNoLanguage(err error) bool {
	return errors.Is(err, errNoLang)
}
