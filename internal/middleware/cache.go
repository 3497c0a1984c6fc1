package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/donation-market/internal/config"
)

// cachedResponse is what lands in Redis for one reference-data response.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// teeWriter forwards to the client while keeping a copy of the body.  Once
// the copy would exceed limit it stops recording and marks itself overflowed.
type teeWriter struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int64
	overflow bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && int64(w.body.Len()+len(b)) > w.limit {
			w.overflow = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// cacheKey hashes the request parts selected by cfg.KeyStrategy under
// cfg.Prefix.  The strategy is a list of parts joined by "_" (method, route,
// query); unknown parts are ignored.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "route_query"
	}
	h := sha1.New()
	for _, part := range strings.Split(strategy, "_") {
		switch part {
		case "method":
			h.Write([]byte("m=" + c.Request().Method + ";"))
		case "route":
			h.Write([]byte("r=" + c.Path() + ";"))
		case "query":
			h.Write([]byte("q=" + c.Request().URL.Query().Encode() + ";"))
		}
	}
	return cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// NewRedisCache serves category and city listings from Redis.  Misses run
// the handler and store 200 responses for cfg.TTL; bodies larger than
// cfg.MaxBodyBytes are served but not stored.  Without Redis the middleware
// is a no-op.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := cacheKey(cfg, c)

			if hit, ok := loadCached(c.Request().Context(), rdb, key); ok {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.Blob(hit.Status, hit.ContentType, hit.Body)
			}

			tw := &teeWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = tw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if tw.status != http.StatusOK || tw.overflow {
				return nil
			}

			entry, err := json.Marshal(cachedResponse{
				Status:      tw.status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        tw.body.Bytes(),
			})
			if err != nil {
				return nil
			}
			// The request context may already be cancelled by the time we store.
			if err := rdb.Set(context.Background(), key, entry, ttl).Err(); err != nil {
				c.Logger().Warnf("cache store %s: %v", key, err)
			}
			return nil
		}
	}
}

func loadCached(ctx context.Context, rdb *redis.Client, key string) (cachedResponse, bool) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return cachedResponse{}, false
	}
	var hit cachedResponse
	if err := json.Unmarshal(raw, &hit); err != nil || hit.Status == 0 {
		return cachedResponse{}, false
	}
	return hit, true
}

// PurgeCache drops every cached response under cfg.Prefix.  Handlers call it
// after writing the reference data the cache fronts.
func PurgeCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, cfg.Prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}
