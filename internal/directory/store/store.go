// Package store owns the lifecycle of the directory index: it finds the
// companies file, rebuilds the snapshot when the file changes, and keeps the
// last good snapshot when a rebuild fails.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

// BuildFunc builds an index from a reader. index.Build is the default.
type BuildFunc func(ctx context.Context, r io.Reader, opts index.Options) (*index.Index, index.Stats, error)

// Options configure a Store.
type Options struct {
	// Candidates are tried in order; relative ones resolve against BaseDir.
	Candidates []string
	// BaseDir defaults to the working directory.
	BaseDir    string
	Normalizer *region.Normalizer
	Metrics    *metrics.Metrics
	Build      BuildFunc
}

// Status describes the snapshot currently served.
type Status struct {
	Loaded    bool        `json:"loaded"`
	Path      string      `json:"source_path,omitempty"`
	ModTime   time.Time   `json:"updated_at,omitempty"`
	BuiltAt   time.Time   `json:"built_at,omitempty"`
	Seq       uint64      `json:"seq"`
	Records   int         `json:"records"`
	Build     index.Stats `json:"build"`
	Stale     bool        `json:"stale"`
	LastError string      `json:"last_error,omitempty"`
	Builds    int64       `json:"builds"`
}

// Store hands out the current index. It is safe for concurrent use.
type Store struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	mu         sync.RWMutex
	current    *index.Index
	currentKey string
	stats      index.Stats
	lastErr    error
	generation uint64

	seq    atomic.Uint64
	builds atomic.Int64
}

// New creates a Store. Nothing is loaded until the first Get.
func New(opts Options) *Store {
	if opts.Normalizer == nil {
		opts.Normalizer = region.Default()
	}
	if opts.Build == nil {
		opts.Build = index.Build
	}
	if opts.BaseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.BaseDir = wd
		}
	}
	return &Store{
		opts:   opts,
		logger: slog.Default().With("component", "directory-store"),
	}
}

type buildResult struct {
	ix    *index.Index
	stats index.Stats
}

// Get returns the index for the current state of the source file, building
// it when the path or modification time changed. Concurrent callers for
// the same file version share one build. ctx bounds only the wait; the build
// itself runs to completion.
func (s *Store) Get(ctx context.Context) (*index.Index, error) {
	path, info, err := ResolveSource(s.opts.BaseDir, s.opts.Candidates)
	if err != nil {
		s.mu.Lock()
		if s.current != nil {
			s.lastErr = err
		}
		s.mu.Unlock()
		return s.fallback(err)
	}

	s.mu.RLock()
	key := cacheKey(path, info, s.generation)
	if s.current != nil && s.currentKey == key {
		ix := s.current
		s.mu.RUnlock()
		if m := s.opts.Metrics; m != nil {
			m.IndexCacheHits.Inc()
		}
		return ix, nil
	}
	s.mu.RUnlock()
	if m := s.opts.Metrics; m != nil {
		m.IndexCacheMisses.Inc()
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.load(key, path, info)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return s.fallback(res.Err)
		}
		return res.Val.(*buildResult).ix, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for index build: %w", ctx.Err())
	}
}

func (s *Store) load(key, path string, info os.FileInfo) (*buildResult, error) {
	seq := s.seq.Add(1)
	s.builds.Add(1)

	ctx, span := tracing.StartSpan(context.Background(), "index.build", "")
	defer span.Finish()
	span.SetAttr("path", path)
	span.SetAttr("seq", seq)

	ix, stats, err := s.buildFile(ctx, path, info, seq)
	m := s.opts.Metrics
	if err != nil {
		span.SetAttr("error", err.Error())
		if m != nil {
			m.IndexBuildsTotal.WithLabelValues("error").Inc()
		}
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}

	if m != nil {
		m.IndexBuildsTotal.WithLabelValues("ok").Inc()
		m.IndexBuildDuration.Observe(stats.Duration.Seconds())
		m.IndexRecords.Set(float64(ix.Len()))
		for reason, n := range stats.Skipped {
			m.IndexLinesSkipped.WithLabelValues(reason).Add(float64(n))
		}
	}

	s.mu.Lock()
	// An older build finishing late must not replace a newer snapshot.
	if s.current == nil || ix.Seq > s.current.Seq {
		s.current = ix
		s.currentKey = key
		s.stats = stats
		s.lastErr = nil
	}
	s.mu.Unlock()

	s.logger.Info("index loaded",
		"path", path,
		"mtime", info.ModTime().UTC().Format(time.RFC3339),
		"records", stats.Records,
		"lines", stats.Lines,
		"duplicates", stats.Duplicates,
		"skipped", stats.Skipped,
		"unknown_region", stats.Unknown,
		"duration", stats.Duration,
		"seq", seq,
	)
	return &buildResult{ix: ix, stats: stats}, nil
}

func (s *Store) buildFile(ctx context.Context, path string, info os.FileInfo, seq uint64) (*index.Index, index.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, index.Stats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return s.opts.Build(ctx, f, index.Options{
		Normalizer: s.opts.Normalizer,
		SourcePath: path,
		ModTime:    info.ModTime(),
		Seq:        seq,
		Logger:     s.logger,
	})
}

func (s *Store) fallback(cause error) (*index.Index, error) {
	s.mu.RLock()
	ix := s.current
	s.mu.RUnlock()
	if ix == nil {
		return nil, cause
	}
	s.logger.Warn("index unavailable, serving previous snapshot",
		"error", cause,
		"seq", ix.Seq,
		"path", ix.SourcePath,
	)
	if m := s.opts.Metrics; m != nil {
		m.IndexStaleFallbacks.Inc()
	}
	return ix, nil
}

// Invalidate forces the next Get to rebuild even if the file is unchanged.
// The current snapshot stays available as the fallback.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.generation++
	s.currentKey = ""
	s.mu.Unlock()
	s.logger.Info("index invalidated")
}

// Current returns the last good snapshot without touching the file system.
func (s *Store) Current() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Builds is the number of builds started so far.
func (s *Store) Builds() int64 { return s.builds.Load() }

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Stale:  s.lastErr != nil,
		Builds: s.builds.Load(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.current != nil {
		st.Loaded = true
		st.Path = s.current.SourcePath
		st.ModTime = s.current.ModTime
		st.BuiltAt = s.current.BuiltAt
		st.Seq = s.current.Seq
		st.Records = s.current.Len()
		st.Build = s.stats
	}
	return st
}
