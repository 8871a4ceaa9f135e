// Package artifact produces and caches derived renditions of media objects.
// The cache key is (media id, format name); the staleness fingerprint is the
// source object's modification time, so replacing a source invalidates every
// cached rendition of it on the next request. Concurrent requests for the
// same artifact are coalesced into a single render.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/storage"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// Artifact is a rendered rendition ready to serve from the local cache.
type Artifact struct {
	Path        string
	Size        int64
	ContentType string
	GeneratedAt time.Time
}

// BlobTier is an optional shared artifact store sitting behind the local
// cache, letting gateway instances reuse each other's renders. Both methods
// are best-effort from the cache's point of view.
type BlobTier interface {
	// Fetch returns the shared copy of key if one exists with a fingerprint
	// at least as new as the given one; ok is false on absence or staleness.
	Fetch(ctx context.Context, key string, fingerprint int64) (io.ReadCloser, bool, error)

	// Store uploads a rendered artifact under key with its fingerprint.
	Store(ctx context.Context, key string, r io.Reader, size int64, fingerprint int64, contentType string) error
}

// Cache renders artifacts on demand and keeps them on local disk, with an
// optional shared blob tier behind it.
type Cache struct {
	source storage.Storage
	dir    string
	shared BlobTier

	group singleflight.Group
}

// NewCache creates an artifact cache rooted at dir. shared may be nil.
func NewCache(source storage.Storage, dir string, shared BlobTier) (*Cache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact cache directory: %w", err)
	}
	return &Cache{source: source, dir: dir, shared: shared}, nil
}

// Get returns the cached rendition of media for format, rendering it first if
// the cache is cold or stale. Concurrent calls for the same artifact share
// one render; a caller whose context ends stops waiting, but the render runs
// to completion so the remaining waiters get the result.
func (c *Cache) Get(ctx context.Context, media *models.MediaObject, format *models.Format) (*Artifact, error) {
	srcInfo, err := c.source.Stat(ctx, media.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source object: %w", err)
	}

	key := cacheKey(media.ID, format)
	localPath := filepath.Join(c.dir, key)

	if artifact, ok := c.fresh(localPath, format, srcInfo.LastModified); ok {
		telemetry.ArtifactCacheResultsTotal.WithLabelValues("hit").Inc()
		return artifact, nil
	}

	renderCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Re-check under the flight lock: another caller may have
		// materialized the artifact while this one queued.
		if artifact, ok := c.fresh(localPath, format, srcInfo.LastModified); ok {
			return artifact, nil
		}
		return c.materialize(renderCtx, key, localPath, media, format, srcInfo.LastModified)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Re-check the cache after the shared flight lands: the flight may
		// have rendered from a source snapshot older than the one this caller
		// observed. If the cache still misses for this caller's fingerprint,
		// render again rather than hand back the outdated result.
		if artifact, ok := c.fresh(localPath, format, srcInfo.LastModified); ok {
			return artifact, nil
		}
		if art := res.Val.(*Artifact); !art.GeneratedAt.Before(srcInfo.LastModified) {
			return art, nil
		}
		return c.materialize(renderCtx, key, localPath, media, format, srcInfo.LastModified)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fresh returns the local artifact if it exists and is not older than the
// source object.
func (c *Cache) fresh(localPath string, format *models.Format, sourceModified time.Time) (*Artifact, bool) {
	st, err := os.Stat(localPath)
	if err != nil || st.ModTime().Before(sourceModified) {
		return nil, false
	}
	return &Artifact{
		Path:        localPath,
		Size:        st.Size(),
		ContentType: ContentType(format.Extension),
		GeneratedAt: st.ModTime(),
	}, true
}

func (c *Cache) materialize(ctx context.Context, key, localPath string, media *models.MediaObject, format *models.Format, sourceModified time.Time) (*Artifact, error) {
	fingerprint := sourceModified.Unix()

	if c.shared != nil {
		reader, ok, err := c.shared.Fetch(ctx, key, fingerprint)
		if err != nil {
			slog.Warn("shared artifact tier fetch failed", "key", key, "error", err)
		} else if ok {
			defer reader.Close()
			if artifact, err := c.writeLocal(localPath, format, reader); err == nil {
				telemetry.ArtifactCacheResultsTotal.WithLabelValues("shared_hit").Inc()
				return artifact, nil
			}
			// Fall through to a full render on a local write failure.
		}
	}

	started := time.Now()
	src, err := c.source.Download(ctx, media.StoragePath)
	if err != nil {
		telemetry.ArtifactRenderErrorsTotal.Inc()
		return nil, fmt.Errorf("failed to download source object: %w", err)
	}
	defer src.Close()

	data, err := Render(src, format)
	if err != nil {
		// The cache is left untouched so the stale copy, if any, stays
		// available for inspection and the next request retries.
		telemetry.ArtifactRenderErrorsTotal.Inc()
		return nil, err
	}
	telemetry.ArtifactCacheResultsTotal.WithLabelValues("render").Inc()
	telemetry.ArtifactRenderDuration.Observe(time.Since(started).Seconds())

	artifact, err := c.writeLocal(localPath, format, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if c.shared != nil {
		if err := c.shared.Store(ctx, key, bytes.NewReader(data), int64(len(data)), fingerprint, artifact.ContentType); err != nil {
			slog.Warn("shared artifact tier store failed", "key", key, "error", err)
		}
	}

	return artifact, nil
}

// writeLocal writes the artifact atomically: temp file in the cache dir, then
// rename over the final path.
func (c *Cache) writeLocal(localPath string, format *models.Format, r io.Reader) (*Artifact, error) {
	tmp, err := os.CreateTemp(c.dir, filepath.Base(localPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp artifact: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	st, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return &Artifact{
		Path:        localPath,
		Size:        st.Size(),
		ContentType: ContentType(format.Extension),
		GeneratedAt: st.ModTime(),
	}, nil
}

// cacheKey is deterministic for a (media, format) pair so every instance and
// the shared tier agree on artifact identity.
func cacheKey(mediaID int64, format *models.Format) string {
	ext := strings.TrimPrefix(format.Extension, ".")
	return fmt.Sprintf("%d_%s.%s", mediaID, format.Name, ext)
}
