// Package logo proxies company logos from the source site and caches them on
// local disk, so list pages do not hotlink the upstream and keep working
// while it is down.
package logo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	freshCacheControl = "public, max-age=31536000, immutable"
	staleCacheControl = "public, max-age=3600"
)

var (
	ErrNotImage = errors.New("upstream_not_image")
	ErrEmpty    = errors.New("upstream_empty")
	ErrTooLarge = errors.New("upstream_too_large")
)

type Config struct {
	CacheDir        string
	TTL             time.Duration
	MaxBytes        int64
	UpstreamTimeout time.Duration
	AllowedHost     string
	UserAgent       string
	// Client overrides the upstream HTTP client.
	Client *http.Client
}

// Image is a logo ready to serve.
type Image struct {
	Body        []byte
	ContentType string
	Key         string
	// Stale is set when the upstream failed and an expired copy is served.
	Stale bool
}

type meta struct {
	ContentType string    `json:"contentType"`
	URL         string    `json:"url"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

type Proxy struct {
	cfg     Config
	client  *http.Client
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Proxy. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Proxy {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "ibiz-logo-cache")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	if cfg.AllowedHost == "" {
		cfg.AllowedHost = "ibiz.by"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Proxy{
		cfg:     cfg,
		client:  client,
		metrics: m,
		logger:  slog.Default().With("component", "logo", "cache_dir", cfg.CacheDir),
		now:     time.Now,
	}
}

// NormalizeURL accepts http(s) URLs on allowedHost or its subdomains with a
// path under /images/. Credentials are dropped and the scheme forced to
// https.
func NormalizeURL(raw, allowedHost string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, apperrors.InvalidInput("empty url")
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, apperrors.InvalidInput("parsing url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.InvalidInput("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	allowed := strings.ToLower(allowedHost)
	if host != allowed && !strings.HasSuffix(host, "."+allowed) {
		return nil, apperrors.InvalidInput("host %q not allowed", host)
	}
	if !strings.HasPrefix(u.Path, "/images/") {
		return nil, apperrors.InvalidInput("path %q not under /images/", u.Path)
	}
	u.User = nil
	u.Scheme = "https"
	return u, nil
}

// Key is the cache key and ETag of a normalized URL.
func Key(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

var safeExt = regexp.MustCompile(`^[.a-z0-9]+$`)

func (p *Proxy) paths(key, urlPath string) (file, metaFile string) {
	ext := strings.ToLower(path.Ext(urlPath))
	if len(ext) > 8 || !safeExt.MatchString(ext) {
		ext = ""
	}
	return filepath.Join(p.cfg.CacheDir, key+ext), filepath.Join(p.cfg.CacheDir, key+".json")
}

// Get returns the logo for raw, from disk when fresh, otherwise from the
// upstream. Concurrent misses for one URL share a single fetch.
func (p *Proxy) Get(ctx context.Context, raw string) (*Image, error) {
	u, err := NormalizeURL(raw, p.cfg.AllowedHost)
	if err != nil {
		return nil, err
	}
	normalized := u.String()
	key := Key(normalized)
	file, metaFile := p.paths(key, u.Path)

	cached, fresh := p.readCached(file, metaFile)
	if cached != nil && fresh {
		p.count("hit")
		cached.Key = key
		return cached, nil
	}

	ch := p.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.UpstreamTimeout)
		defer cancel()
		return p.fetch(fctx, normalized, file, metaFile)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err == nil {
		img := *res.Val.(*Image)
		img.Key = key
		p.count("fetched")
		return &img, nil
	}
	if cached != nil {
		p.logger.Warn("serving stale logo", "url", normalized, "error", res.Err)
		p.count("stale")
		cached.Key = key
		cached.Stale = true
		return cached, nil
	}
	p.count("error")
	return nil, fmt.Errorf("fetching %s: %w", normalized, res.Err)
}

func (p *Proxy) readCached(file, metaFile string) (*Image, bool) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, false
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, false
	}
	img := &Image{Body: body, ContentType: "application/octet-stream"}
	if raw, err := os.ReadFile(metaFile); err == nil {
		var m meta
		if json.Unmarshal(raw, &m) == nil && m.ContentType != "" {
			img.ContentType = m.ContentType
		}
	}
	return img, p.now().Sub(info.ModTime()) < p.cfg.TTL
}

func (p *Proxy) fetch(ctx context.Context, target, file, metaFile string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream_status:%d", resp.StatusCode)
	}
	ct := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if ct == "" {
		ct = "application/octet-stream"
	}
	if !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return nil, ErrNotImage
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upstream body: %w", err)
	}
	switch {
	case len(body) == 0:
		return nil, ErrEmpty
	case int64(len(body)) > p.cfg.MaxBytes:
		return nil, ErrTooLarge
	}

	if err := p.store(file, metaFile, body, meta{ContentType: ct, URL: target, FetchedAt: p.now().UTC()}); err != nil {
		p.logger.Error("caching logo", "url", target, "error", err)
	}
	return &Image{Body: body, ContentType: ct}, nil
}

// store writes through temporary files so readers never see partial data.
func (p *Proxy) store(file, metaFile string, body []byte, m meta) error {
	if err := os.MkdirAll(p.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := writeAtomic(file, body); err != nil {
		return err
	}
	return writeAtomic(metaFile, raw)
}

func writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".logo-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func (p *Proxy) count(outcome string) {
	if p.metrics != nil {
		p.metrics.LogoFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

// ServeHTTP answers GET ?url= (or ?u=) with the image bytes. Errors are
// plain-text codes: 400 bad_url and 502 upstream_error.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		raw = r.URL.Query().Get("u")
	}
	img, err := p.Get(r.Context(), raw)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInvalidInput {
			http.Error(w, "bad_url", http.StatusBadRequest)
			return
		}
		http.Error(w, "upstream_error", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("ETag", img.Key)
	if img.Stale {
		w.Header().Set("Cache-Control", staleCacheControl)
	} else {
		w.Header().Set("Cache-Control", freshCacheControl)
	}
	w.Write(img.Body)
}
