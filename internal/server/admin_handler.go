package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidscribe-backend/internal/combine"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/naming"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

type AdminHandler struct {
	log      *logger.Logger
	bucket   bucket.Service
	manifest *manifest.Store
	builder  *combine.Builder
}

func newAdminHandler(log *logger.Logger, b bucket.Service, m *manifest.Store, builder *combine.Builder) *AdminHandler {
	return &AdminHandler{
		log:      log.With("handler", "AdminHandler"),
		bucket:   b,
		manifest: m,
		builder:  builder,
	}
}

type reindexRequest struct {
	Query string `json:"query" binding:"required"`
}

// POST /admin/reindex rebuilds the combined artifacts for an already
// processed query from its manifest. Runs synchronously; intended for
// operator use after manual artifact edits or migrations.
func (h *AdminHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		respondError(c, http.StatusBadRequest, "empty_query", nil)
		return
	}

	slug := naming.Slug(query)
	m, err := h.manifest.Get(c.Request.Context(), slug)
	if err != nil {
		h.log.Error("Reindex manifest read failed", "slug", slug, "error", err)
		respondError(c, http.StatusInternalServerError, "manifest_read_failed", err)
		return
	}

	var videoKeys []string
	for _, v := range m.Videos {
		if v.ObjectKey == "" || v.Status == types.StatusFailed {
			continue
		}
		videoKeys = append(videoKeys, v.ObjectKey)
	}
	if len(videoKeys) == 0 {
		respondError(c, http.StatusNotFound, "no_videos", nil)
		return
	}

	if m.Query != "" {
		query = m.Query
	}
	out, err := h.builder.Build(c.Request.Context(), query, videoKeys)
	if err != nil {
		h.log.Error("Reindex build failed", "slug", slug, "error", err)
		respondError(c, http.StatusInternalServerError, "rebuild_failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slug":          slug,
		"status":        out.Status,
		"count":         out.Count,
		"replace_count": out.ReplaceCount,
		"output_key":    naming.CombinedOutputKey(slug),
	})
}
