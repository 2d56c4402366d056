// Package snapshot persists the latest canonical extraction of each platform.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/editorialops/referee-monitor/internal/diff"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

// Store loads and commits snapshots. Access to one platform's snapshot is serialized;
// different platforms never contend.
type Store struct {
	storage storage.StorageInterface
	prefix  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a snapshot store keeping documents under "snapshots/"
func NewStore(s storage.StorageInterface) *Store {
	return &Store{storage: s, prefix: "snapshots/", locks: make(map[string]*sync.Mutex)}
}

// Key returns the object name of a platform's snapshot
func (s *Store) Key(platform string) string {
	return s.prefix + platform + ".json"
}

func (s *Store) lock(platform string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[platform]
	if !ok {
		l = &sync.Mutex{}
		s.locks[platform] = l
	}
	return l
}

// Load returns the last committed snapshot, or nil when the platform has none yet
func (s *Store) Load(ctx context.Context, platform string) (*models.Snapshot, error) {
	l := s.lock(platform)
	l.Lock()
	defer l.Unlock()

	data, err := s.storage.Retrieve(ctx, s.Key(platform))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", platform, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", platform, err)
	}
	if snap.Manuscripts == nil {
		snap.Manuscripts = map[string]models.SnapshotEntry{}
	}
	return &snap, nil
}

// Commit replaces the platform's snapshot in a single write
func (s *Store) Commit(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil || snap.Platform == "" {
		return fmt.Errorf("snapshot without platform")
	}
	l := s.lock(snap.Platform)
	l.Lock()
	defer l.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", snap.Platform, err)
	}
	if err := s.storage.Store(ctx, s.Key(snap.Platform), data); err != nil {
		return fmt.Errorf("failed to commit snapshot for %s: %w", snap.Platform, err)
	}

	logrus.WithFields(logrus.Fields{
		"platform":    snap.Platform,
		"manuscripts": len(snap.Manuscripts),
	}).Info("Committed snapshot")
	return nil
}

// Reset forgets a platform's snapshot, so its next run reports every manuscript as new
func (s *Store) Reset(ctx context.Context, platform string) error {
	l := s.lock(platform)
	l.Lock()
	defer l.Unlock()

	if err := s.storage.Delete(ctx, s.Key(platform)); err != nil {
		return fmt.Errorf("failed to reset snapshot for %s: %w", platform, err)
	}
	logrus.WithField("platform", platform).Info("Reset snapshot")
	return nil
}

// Platforms lists the platforms that have a committed snapshot
func (s *Store) Platforms(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var platforms []string
	for _, name := range names {
		rest := strings.TrimPrefix(name, s.prefix)
		if rest == name || !strings.HasSuffix(rest, ".json") || strings.Contains(rest, "/") {
			continue
		}
		platforms = append(platforms, strings.TrimSuffix(rest, ".json"))
	}
	return platforms, nil
}

// Build assembles the snapshot document for a set of records
func Build(platform string, records []models.ManuscriptRecord, extractedAt time.Time) *models.Snapshot {
	snap := &models.Snapshot{
		Platform:       platform,
		ExtractionTime: extractedAt.UTC(),
		Manuscripts:    make(map[string]models.SnapshotEntry, len(records)),
	}
	for _, m := range records {
		snap.Manuscripts[m.ID] = models.SnapshotEntry{
			Hash:       diff.ManuscriptHash(m),
			Referees:   m.Referees,
			Manuscript: m,
		}
	}
	return snap
}
