package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/editorialops/referee-monitor/internal/diff"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStorage is an in-memory storage backend
type memoryStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	storeErr error
	writes   int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (m *memoryStorage) Store(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.writes++
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStorage) Retrieve(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	return data, nil
}

func (m *memoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStorage) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func records() []models.ManuscriptRecord {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	email := "lee@mit.edu"
	return []models.ManuscriptRecord{
		{
			ID:    "M-1",
			Title: "Sparse control",
			Referees: []models.RefereeRecord{
				{Name: "Lee Chen", Email: &email, Status: models.StatusAccepted, DueDate: &due},
			},
		},
		{ID: "M-2", Title: "Second"},
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(newMemoryStorage())
	snap, err := s.Load(context.Background(), "sicon")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStore_CommitThenLoad(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStorage()
	s := NewStore(mem)

	at := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	built := Build("sicon", records(), at)
	require.NoError(t, s.Commit(ctx, built))
	assert.Contains(t, mem.files, "snapshots/sicon.json")

	loaded, err := s.Load(ctx, "sicon")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	if d := cmp.Diff(built, loaded); d != "" {
		t.Errorf("snapshot mismatch (-built +loaded):\n%s", d)
	}
	assert.Equal(t, diff.ManuscriptHash(records()[0]), loaded.Manuscripts["M-1"].Hash)
}

func TestStore_CommitFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStorage()
	s := NewStore(mem)

	require.NoError(t, s.Commit(ctx, Build("sicon", records()[:1], time.Now())))
	mem.storeErr = errors.New("disk full")

	err := s.Commit(ctx, Build("sicon", records(), time.Now()))
	require.Error(t, err)

	loaded, err := s.Load(ctx, "sicon")
	require.NoError(t, err)
	assert.Len(t, loaded.Manuscripts, 1)
}

func TestStore_CorruptDocument(t *testing.T) {
	mem := newMemoryStorage()
	mem.files["snapshots/sicon.json"] = []byte("{not json")

	_, err := NewStore(mem).Load(context.Background(), "sicon")
	assert.Error(t, err)
}

func TestStore_RejectsSnapshotWithoutPlatform(t *testing.T) {
	s := NewStore(newMemoryStorage())
	assert.Error(t, s.Commit(context.Background(), &models.Snapshot{}))
	assert.Error(t, s.Commit(context.Background(), nil))
}

func TestStore_ConcurrentPlatforms(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStorage()
	s := NewStore(mem)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			platform := fmt.Sprintf("p%d", i%4)
			assert.NoError(t, s.Commit(ctx, Build(platform, records(), time.Now())))
			_, err := s.Load(ctx, platform)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, mem.writes)
	assert.Len(t, mem.files, 4)
}

func TestStore_Platforms(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStorage()
	s := NewStore(mem)

	require.NoError(t, s.Commit(ctx, Build("sicon", records(), time.Now())))
	require.NoError(t, s.Commit(ctx, Build("mafe", records(), time.Now())))
	mem.files["reports/sicon.json"] = []byte("{}")
	mem.files["snapshots/archive/old.json"] = []byte("{}")

	platforms, err := s.Platforms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mafe", "sicon"}, platforms)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemoryStorage())
	require.NoError(t, s.Commit(ctx, Build("sicon", records(), time.Now())))

	require.NoError(t, s.Reset(ctx, "sicon"))
	snap, err := s.Load(ctx, "sicon")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.Reset(ctx, "sicon"), "resetting a platform without snapshot")
}
