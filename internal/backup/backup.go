// Package backup exports every dashboard collection as a gzip-compressed
// JSON snapshot to S3-compatible storage, on demand or on a schedule, and
// prunes snapshots older than the retention window.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cio-dashboard/internal/logger"
	"cio-dashboard/internal/metrics"
)

const (
	filePrefix  = "cio-dashboard-"
	fileSuffix  = ".json.gz"
	fileLayout  = "20060102-150405"
	contentType = "application/gzip"

	defaultMaxFailures = 3
)

// Object describes one stored snapshot.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the subset of an S3 bucket the manager needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Source exports one collection.
type Source struct {
	Name string
	List func(ctx context.Context) (any, error)
}

// Snapshot is the decoded content of one backup object.
type Snapshot struct {
	CreatedAt   time.Time                  `json:"created_at"`
	Collections map[string]json.RawMessage `json:"collections"`
}

// Config controls a Manager.
type Config struct {
	Interval      time.Duration // zero disables scheduling
	RetentionDays int           // zero keeps every snapshot
	Prefix        string
	// MaxFailures consecutive scheduled failures are reported to OnFatal.
	MaxFailures int
	OnFatal     func(error)
}

// Manager writes and prunes snapshots.
type Manager struct {
	cfg     Config
	store   ObjectStore
	sources []Source
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager returns a Manager. m may be nil.
func NewManager(cfg Config, store ObjectStore, sources []Source, m *metrics.Metrics) *Manager {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		sources: sources,
		metrics: m,
		now:     time.Now,
	}
}

// RunOnce writes one snapshot and then applies retention. It returns the
// key written.
func (bm *Manager) RunOnce(ctx context.Context) (key string, err error) {
	start := bm.now()
	var size int64
	defer func() { bm.metrics.RecordBackup(err, size) }()

	logger.Info("starting database backup")

	payload, err := bm.export(ctx, start)
	if err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}
	size = int64(len(payload))

	key = bm.cfg.Prefix + filePrefix + start.UTC().Format(fileLayout) + fileSuffix
	if err := bm.store.Put(ctx, key, bytes.NewReader(payload), size, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	logger.Info("database backup completed",
		zap.String("key", key),
		zap.Int64("size_bytes", size),
		zap.Duration("duration", time.Since(start)),
	)

	if _, err := bm.Prune(ctx); err != nil {
		logger.Warn("failed to prune old backups", zap.Error(err))
	}
	return key, nil
}

// export reads every source concurrently and returns the compressed snapshot.
func (bm *Manager) export(ctx context.Context, at time.Time) ([]byte, error) {
	docs := make([]json.RawMessage, len(bm.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range bm.sources {
		g.Go(func() error {
			items, err := src.List(gctx)
			if err != nil {
				return fmt.Errorf("export %s: %w", src.Name, err)
			}
			b, err := json.Marshal(items)
			if err != nil {
				return fmt.Errorf("encode %s: %w", src.Name, err)
			}
			docs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := Snapshot{CreatedAt: at.UTC(), Collections: make(map[string]json.RawMessage, len(docs))}
	for i, src := range bm.sources {
		snap.Collections[src.Name] = docs[i]
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// List returns the stored snapshots, newest first.
func (bm *Manager) List(ctx context.Context) ([]Object, error) {
	objs, err := bm.store.List(ctx, bm.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := objs[:0]
	for _, o := range objs {
		if isSnapshot(bm.cfg.Prefix, o.Key) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// Read downloads and decodes one snapshot.
func (bm *Manager) Read(ctx context.Context, key string) (Snapshot, error) {
	rc, err := bm.store.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	defer rc.Close()

	zr, err := gzip.NewReader(rc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", key, err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return snap, nil
}

// Prune removes snapshots older than RetentionDays and returns how many
// were deleted.
func (bm *Manager) Prune(ctx context.Context) (int, error) {
	if bm.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := bm.now().AddDate(0, 0, -bm.cfg.RetentionDays)

	objs, err := bm.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, o := range objs {
		if !o.LastModified.Before(cutoff) {
			continue
		}
		if err := bm.store.Remove(ctx, o.Key); err != nil {
			logger.Warn("failed to remove old backup", zap.String("key", o.Key), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		removed++
		logger.Info("removed old backup",
			zap.String("key", o.Key),
			zap.Duration("age", bm.now().Sub(o.LastModified)),
		)
	}
	return removed, errors.Join(errs...)
}

// Start runs a backup immediately and then every Interval until Stop or ctx
// is done. After MaxFailures consecutive failures OnFatal is called once
// and the scheduler stops.
func (bm *Manager) Start(ctx context.Context) {
	if bm.cfg.Interval <= 0 {
		logger.Info("database backups disabled")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	bm.mu.Lock()
	bm.cancel = cancel
	bm.mu.Unlock()

	logger.Info("database backup scheduler started",
		zap.Duration("interval", bm.cfg.Interval),
		zap.Int("retention_days", bm.cfg.RetentionDays),
		zap.String("prefix", bm.cfg.Prefix),
	)

	bm.wg.Add(1)
	go func() {
		defer bm.wg.Done()
		ticker := time.NewTicker(bm.cfg.Interval)
		defer ticker.Stop()

		failures := 0
		for {
			if _, err := bm.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Error("scheduled backup failed", err, zap.Int("consecutive_failures", failures))
				if failures >= bm.cfg.MaxFailures {
					if bm.cfg.OnFatal != nil {
						bm.cfg.OnFatal(fmt.Errorf("%d consecutive backups failed: %w", failures, err))
					}
					return
				}
			} else {
				failures = 0
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				logger.Info("backup scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for an in-flight backup to finish.
func (bm *Manager) Stop() {
	bm.stopOnce.Do(func() {
		bm.mu.Lock()
		cancel := bm.cancel
		bm.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		bm.wg.Wait()
	})
}

func isSnapshot(prefix, key string) bool {
	name := strings.TrimPrefix(key, prefix)
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
