package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makemykankotri/kankotri/pkg/storage"
)

const uploadPrefix = "uploads"

// AssetResponse describes a stored upload
type AssetResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// FeatureRequest toggles a feature flag
type FeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// uploadAsset stores an image from the multipart field "file". The stored
// content type comes from the bytes, not from the client.
func (s *Server) uploadAsset(c *gin.Context) {
	if s.deps.Assets == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "asset storage is not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadSize+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "multipart field \"file\" is required")
		return
	}
	if header.Size > s.config.MaxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file is too large"})
		return
	}

	f, err := header.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	sniff := make([]byte, 512)
	n, err := io.ReadFull(f, sniff)
	if err != nil && err != io.ErrUnexpectedEOF {
		s.badRequest(c, "failed to read upload")
		return
	}
	sniff = sniff[:n]
	contentType := http.DetectContentType(sniff)

	key, err := storage.NewKey(uploadPrefix, contentType, time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	url, err := s.deps.Assets.Put(c.Request.Context(), key, contentType, io.MultiReader(bytes.NewReader(sniff), f))
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.metrics.RecordCounter("asset_uploads_total", 1, map[string]string{"content_type": contentType})
	c.JSON(http.StatusCreated, AssetResponse{Key: key, URL: url, ContentType: contentType, Size: header.Size})
}

// serveMemoryAsset serves uploads held by a MemoryStore
func (s *Server) serveMemoryAsset(store *storage.MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		obj, err := store.Get(strings.TrimPrefix(c.Param("key"), "/"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Header("Cache-Control", "public, max-age=86400")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, obj.ContentType, obj.Data)
	}
}

// listPlugins returns installed plugins in installation order
func (s *Server) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.deps.Plugins.List()})
}

// setFeature toggles one flag. Plugins bound to the flag follow it.
func (s *Server) setFeature(c *gin.Context) {
	var req FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		s.badRequest(c, "body must be {\"enabled\": true|false}")
		return
	}
	name := c.Param("name")
	if err := s.deps.Flags.Set(c.Request.Context(), name, *req.Enabled); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": s.deps.Flags.IsEnabled(name), "features": s.deps.Flags.All()})
}
