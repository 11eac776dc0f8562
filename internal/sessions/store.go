// Package sessions manages the persistent browser profile directory of each account.
//
// A profile holds the cookies and local storage of an already signed-in browser,
// so publishing never has to authenticate. This package is the only place that
// creates or removes profile directories; everything else just asks for a path.
package sessions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidAccountID is returned for ids that cannot name a profile directory.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrSessionStore is returned when the profile root or a profile cannot be used.
	ErrSessionStore = errors.New("session store failure")
)

// Store owns the profile directories below a single root.
type Store struct {
	root string
}

// NewStore creates a store rooted at root. The root is created lazily.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the directory holding all profiles.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns where the profile for id lives. It performs no I/O.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.root, id)
}

// Create makes the profile directory for id, returning its path.
// Creating an existing profile succeeds and leaves its contents alone.
func (s *Store) Create(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := s.ensureRoot(); err != nil {
		return "", err
	}

	path := s.PathFor(id)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("%w: creating profile %s: %v", ErrSessionStore, id, err)
	}

	log.Debug().Str("account_id", id).Str("path", path).Msg("Session profile ready")
	return path, nil
}

// Delete removes the profile for id. Deleting a missing profile succeeds.
func (s *Store) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	if err := os.RemoveAll(s.PathFor(id)); err != nil {
		return fmt.Errorf("%w: removing profile %s: %v", ErrSessionStore, id, err)
	}

	log.Debug().Str("account_id", id).Msg("Session profile removed")
	return nil
}

// Exists reports whether a profile directory exists for id.
func (s *Store) Exists(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	info, err := os.Stat(s.PathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: checking profile %s: %v", ErrSessionStore, id, err)
	}
	return info.IsDir(), nil
}

// List returns the account ids that have a profile, sorted.
func (s *Store) List() ([]string, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading profile root: %v", ErrSessionStore, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ensureRoot() error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		log.Error().Err(err).Str("root", s.root).Msg("Failed to create session root")
		return fmt.Errorf("%w: creating root %s: %v", ErrSessionStore, s.root, err)
	}
	return nil
}

// ValidateID rejects ids that would escape the profile root.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidAccountID)
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, os.PathSeparator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidAccountID, id)
	case strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidAccountID, id)
	case strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidAccountID, id)
	}
	return nil
}
