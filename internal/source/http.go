package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/metrics"
	"github.com/kiesman99/geostitch/pkg/tile"
)

const userAgent = "geostitch/1.0"

// HTTPOptions configures the shared fetcher behind the HTTP sources.
type HTTPOptions struct {
	Name        string
	URLTemplate string
	Profile     *tile.Profile
	Headers     map[string]string
	UserAgent   string
	Timeout     time.Duration
	Coverage    Coverage
	Client      *http.Client
	Logger      logger.Logger
}

type httpFetcher struct {
	name      string
	template  string
	profile   *tile.Profile
	headers   map[string]string
	userAgent string
	client    *http.Client
	coverage  Coverage
	blacklist *Blacklist
	logger    logger.Logger
}

func newHTTPFetcher(opts HTTPOptions) (*httpFetcher, error) {
	if opts.URLTemplate == "" {
		return nil, fmt.Errorf("source %q: empty url template", opts.Name)
	}
	p := opts.Profile
	if p == nil {
		p = tile.SphericalMercator()
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = userAgent
	}
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	return &httpFetcher{
		name:      opts.Name,
		template:  opts.URLTemplate,
		profile:   p,
		headers:   opts.Headers,
		userAgent: ua,
		client:    client,
		coverage:  opts.Coverage,
		blacklist: NewBlacklist(),
		logger:    l,
	}, nil
}

func (f *httpFetcher) Name() string           { return f.name }
func (f *httpFetcher) Profile() *tile.Profile { return f.profile }
func (f *httpFetcher) Blacklist() *Blacklist  { return f.blacklist }

func (f *httpFetcher) HasData(key tile.TileKey) bool {
	return f.coverage.Contains(key)
}

// fetch downloads the tile for key. Missing tiles are blacklisted and
// reported as ErrNoData.
func (f *httpFetcher) fetch(ctx context.Context, key tile.TileKey) ([]byte, error) {
	if f.blacklist.Contains(key.ID()) || !f.HasData(key) {
		metrics.TileFetches.WithLabelValues(metrics.ResultNoData).Inc()
		return nil, ErrNoData
	}

	url := BuildURL(f.template, key)
	start := time.Now()
	data, status, err := f.download(ctx, url)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.TileFetches.WithLabelValues(metrics.ResultOK).Inc()
		return data, nil
	case status == http.StatusNotFound || status == http.StatusNoContent:
		f.blacklist.Add(key.ID())
		metrics.TileFetches.WithLabelValues(metrics.ResultNoData).Inc()
		f.logger.Debug("tile missing upstream", "source", f.name, "key", key.String(), "status", status)
		return nil, ErrNoData
	default:
		metrics.TileFetches.WithLabelValues(metrics.ResultError).Inc()
		f.logger.Info("tile download failed", "source", f.name, "url", url, "error", err)
		return nil, fmt.Errorf("source %q: %s: %w", f.name, key, err)
	}
}

func (f *httpFetcher) download(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

// BuildURL expands {z}, {x}, {y}, {-y} and {s} in template. {y} is the XYZ
// row counted from the top; {-y} is the key's own row counted from the
// bottom.
func BuildURL(template string, key tile.TileKey) string {
	xyz := key.MapTile()
	url := template
	url = strings.ReplaceAll(url, "{z}", strconv.FormatUint(uint64(key.Level), 10))
	url = strings.ReplaceAll(url, "{x}", strconv.FormatUint(uint64(key.X), 10))
	url = strings.ReplaceAll(url, "{-y}", strconv.FormatUint(uint64(key.Y), 10))
	url = strings.ReplaceAll(url, "{y}", strconv.FormatUint(uint64(xyz.Y), 10))
	if strings.Contains(url, "{s}") {
		subdomain := string(rune('a' + (key.X+xyz.Y)%3))
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}
