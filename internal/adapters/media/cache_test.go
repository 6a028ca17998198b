package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, body []byte, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCache_GetFetchesOnce(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := upstream(t, []byte("mp3-bytes"), &status, &hits)
	c := NewCache(srv.URL, "", time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []byte("mp3-bytes"), data)
		}()
	}
	wg.Wait()

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCache_RetriesAfterFailure(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := upstream(t, []byte("late"), &status, &hits)
	c := NewCache(srv.URL, "", time.Second)

	c.Preload(context.Background())
	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	status.Store(http.StatusOK)
	data, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), data)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCache_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := upstream(t, []byte("0123456789"), &status, &hits)

	r := gin.New()
	r.GET("/audio/music.mp3", NewCache(srv.URL, "", time.Second).Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audio/music.mp3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0123456789", w.Body.String())
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))

	req := httptest.NewRequest(http.MethodGet, "/audio/music.mp3", nil)
	req.Header.Set("Range", "bytes=2-4")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "234", w.Body.String())
}

func TestCache_HandlerUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var status, hits atomic.Int32
	status.Store(http.StatusNotFound)
	srv := upstream(t, nil, &status, &hits)

	r := gin.New()
	r.GET("/audio/music.mp3", NewCache(srv.URL, "audio/ogg", time.Second).Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audio/music.mp3", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Audio not available", w.Body.String())
}
