// Package media serves one remote binary asset from memory. The asset is
// fetched once and kept for the life of the process.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrUpstreamUnavailable = errors.New("upstream unavailable")

const (
	DefaultContentType = "audio/mpeg"
	cacheControl       = "public, max-age=86400"
)

type Cache struct {
	url         string
	contentType string
	client      *http.Client

	group singleflight.Group

	mu      sync.RWMutex
	data    []byte
	fetched time.Time
}

func NewCache(url, contentType string, timeout time.Duration) *Cache {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Cache{
		url:         url,
		contentType: contentType,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *Cache) cached() ([]byte, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.fetched, c.data != nil
}

// Get returns the asset, fetching it if no earlier fetch succeeded.
// Concurrent callers share one upstream request.
func (c *Cache) Get(ctx context.Context) ([]byte, error) {
	if data, _, ok := c.cached(); ok {
		return data, nil
	}
	v, err, _ := c.group.Do(c.url, func() (any, error) {
		if data, _, ok := c.cached(); ok {
			return data, nil
		}
		// Detached from the caller so one cancelled request does not fail
		// everyone waiting on the same fetch.
		data, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.data = data
		c.fetched = time.Now()
		c.mu.Unlock()
		log.Info().Str("module", "media").Str("url", c.url).Int("bytes", len(data)).Msg("media cached")
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Preload warms the cache. Failures are logged; the next request retries.
func (c *Cache) Preload(ctx context.Context) {
	log.Info().Str("module", "media").Str("url", c.url).Msg("preloading media")
	if _, err := c.Get(ctx); err != nil {
		log.Error().Err(err).Str("module", "media").Msg("media preload failed")
	}
}

func (c *Cache) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return data, nil
}

// Handler serves the cached bytes, with range support, or 500 when the
// upstream cannot be fetched.
func (c *Cache) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		data, err := c.Get(ctx.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "media").Msg("media unavailable")
			ctx.String(http.StatusInternalServerError, "Audio not available")
			return
		}
		_, fetched, _ := c.cached()
		h := ctx.Writer.Header()
		h.Set("Content-Type", c.contentType)
		h.Set("Cache-Control", cacheControl)
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Accept-Ranges", "bytes")
		http.ServeContent(ctx.Writer, ctx.Request, "", fetched, bytes.NewReader(data))
	}
}
