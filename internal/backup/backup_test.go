package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cio-dashboard/internal/metrics"
)

type memObject struct {
	data     []byte
	modified time.Time
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	now     func() time.Time
	putErr  error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{objects: map[string]memObject{}, now: now}
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{data: b, modified: s.now()}
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Object
	for k, o := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) keys() []string {
	objs, _ := s.List(context.Background(), "")
	var keys []string
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	return keys
}

type item struct {
	Title string `json:"title"`
}

func sources() []Source {
	return []Source{
		{Name: "priorityTasks", List: func(context.Context) (any, error) {
			return []item{{Title: "Review budget"}}, nil
		}},
		{Name: "incidents", List: func(context.Context) (any, error) {
			return []item{}, nil
		}},
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRunOnce_WritesSnapshot(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	m := metrics.New()
	bm := NewManager(Config{Prefix: "backups/"}, store, sources(), m)
	bm.now = clock.Now

	key, err := bm.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backups/cio-dashboard-20240501-103000.json.gz", key)

	snap, err := bm.Read(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, snap.CreatedAt.Equal(clock.Now()))
	assert.JSONEq(t, `[{"title":"Review budget"}]`, string(snap.Collections["priorityTasks"]))
	assert.JSONEq(t, `[]`, string(snap.Collections["incidents"]))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(len(store.objects[key].data)), testutil.ToFloat64(m.BackupBytes))
}

func TestRunOnce_SourceFailure(t *testing.T) {
	store := newMemStore(time.Now)
	m := metrics.New()
	srcs := append(sources(), Source{Name: "highPriorityProjects", List: func(context.Context) (any, error) {
		return nil, errors.New("connection reset")
	}})
	bm := NewManager(Config{}, store, srcs, m)

	_, err := bm.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export highPriorityProjects")
	assert.Empty(t, store.keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupsTotal.WithLabelValues("failure")))
}

func TestRunOnce_UploadFailure(t *testing.T) {
	store := newMemStore(time.Now)
	store.putErr = errors.New("bucket gone")
	bm := NewManager(Config{}, store, sources(), nil)

	_, err := bm.RunOnce(context.Background())
	assert.ErrorIs(t, err, store.putErr)
}

func TestPrune_RemovesExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	bm := NewManager(Config{Prefix: "b/", RetentionDays: 7}, store, sources(), nil)
	bm.now = clock.Now

	old, err := bm.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "b/notes.txt", strings.NewReader("x"), 1, "text/plain"))

	clock.Advance(8 * 24 * time.Hour)
	fresh, err := bm.RunOnce(context.Background())
	require.NoError(t, err)

	keys := store.keys()
	assert.NotContains(t, keys, old)
	assert.Contains(t, keys, fresh)
	assert.Contains(t, keys, "b/notes.txt", "unrelated objects are left alone")
}

func TestPrune_ZeroRetentionKeepsAll(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	bm := NewManager(Config{}, store, sources(), nil)
	bm.now = clock.Now

	_, err := bm.RunOnce(context.Background())
	require.NoError(t, err)
	clock.Advance(365 * 24 * time.Hour)

	n, err := bm.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.keys(), 1)
}

func TestList_NewestFirst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	bm := NewManager(Config{Prefix: "b/"}, store, sources(), nil)
	bm.now = clock.Now

	var written []string
	for i := 0; i < 3; i++ {
		key, err := bm.RunOnce(context.Background())
		require.NoError(t, err)
		written = append(written, key)
		clock.Advance(time.Hour)
	}

	objs, err := bm.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, written[2], objs[0].Key)
	assert.Equal(t, written[0], objs[2].Key)
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	store := newMemStore(time.Now)
	bm := NewManager(Config{Interval: time.Hour}, store, sources(), nil)

	bm.Start(context.Background())
	assert.Eventually(t, func() bool { return len(store.keys()) == 1 }, 2*time.Second, 10*time.Millisecond)

	bm.Stop()
	bm.Stop()
}

func TestStart_DisabledWithoutInterval(t *testing.T) {
	store := newMemStore(time.Now)
	bm := NewManager(Config{}, store, sources(), nil)
	bm.Start(context.Background())
	bm.Stop()
	assert.Empty(t, store.keys())
}

func TestStart_ReportsRepeatedFailures(t *testing.T) {
	store := newMemStore(time.Now)
	store.putErr = errors.New("bucket gone")

	fatal := make(chan error, 1)
	bm := NewManager(Config{
		Interval:    5 * time.Millisecond,
		MaxFailures: 2,
		OnFatal:     func(err error) { fatal <- err },
	}, store, sources(), nil)

	bm.Start(context.Background())
	defer bm.Stop()

	select {
	case err := <-fatal:
		assert.ErrorIs(t, err, store.putErr)
		assert.Contains(t, err.Error(), "2 consecutive backups failed")
	case <-time.After(2 * time.Second):
		t.Fatal("OnFatal was not called")
	}
}

func TestSnapshot_IsGzipJSON(t *testing.T) {
	store := newMemStore(time.Now)
	bm := NewManager(Config{}, store, sources(), nil)
	key, err := bm.RunOnce(context.Background())
	require.NoError(t, err)

	data := store.objects[key].data
	require.GreaterOrEqual(t, len(data), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])

	snap, err := bm.Read(context.Background(), key)
	require.NoError(t, err)
	var tasks []item
	require.NoError(t, json.Unmarshal(snap.Collections["priorityTasks"], &tasks))
	assert.Equal(t, []item{{Title: "Review budget"}}, tasks)
}
