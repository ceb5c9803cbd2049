package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store/schema"
)

// Service is the orchestrator surface the handlers depend on
type Service interface {
	IngestItem(ctx context.Context, text string, createdAt time.Time, makerID int64, playerHash string) (*schema.Item, error)
	GetItem(ctx context.Context, id string) (*schema.Item, error)
	DeleteItem(ctx context.Context, id string) error
	GetPlayCount(ctx context.Context, makerID int64) (int64, error)
	GetPlayCounts(ctx context.Context, makerIDs []int64) ([]domain.MakerPlayCount, error)
	GetRanking(ctx context.Context, limit int) ([]domain.MakerPlayCount, error)
	TriggerRankingUpdate(ctx context.Context, r domain.TimeRange) (domain.RecomputeCommand, error)
}

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetItem retrieves a single play event by its key
	// GET /items/:key
	GetItem(c *gin.Context)

	// CreateItem ingests one play event
	// POST /items
	CreateItem(c *gin.Context)

	// DeleteItem removes a play event
	// DELETE /items/:key
	DeleteItem(c *gin.Context)

	// GetPlayCount returns one maker's running play count
	// GET /makers/:makerId/play_count
	GetPlayCount(c *gin.Context)

	// GetPlayCountMany returns running play counts for a comma-separated maker id list
	// GET /makers/:makerId/play_count_many
	GetPlayCountMany(c *gin.Context)

	// GetRanking returns makers ordered by play count
	// GET /ranking?limit=
	GetRanking(c *gin.Context)

	// UpdateRanking triggers an asynchronous full-window recompute
	// POST /ranking/update
	UpdateRanking(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	service Service
}

// NewHandler creates a new REST API handler
func NewHandler(svc Service) Handler {
	return &handler{service: svc}
}

// GetItem retrieves a single play event by its key
func (h *handler) GetItem(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		respondBadRequest(c, "Item key is required")
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			respondNotFound(c, "Item not found")
			return
		}
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to get item")
		return
	}

	c.JSON(http.StatusOK, itemResponse{
		ID:        item.ID,
		Text:      item.Text,
		CreatedAt: item.CreatedAt.Unix(),
		MakerID:   item.MakerID,
	})
}

// CreateItem ingests one play event
func (h *handler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	createdAt := time.Unix(req.CreatedAt, 0).UTC()

	item, err := h.service.IngestItem(c.Request.Context(), req.Text, createdAt, req.MakerID, req.UserHash)
	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			respondValidationError(c, validation.Error())
			return
		}
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to create item")
		return
	}

	c.JSON(http.StatusOK, createItemResponse{ID: item.ID})
}

// DeleteItem removes a play event. The running count is not adjusted.
func (h *handler) DeleteItem(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		respondBadRequest(c, "Item key is required")
		return
	}

	if err := h.service.DeleteItem(c.Request.Context(), key); err != nil {
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to delete item")
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "ok"})
}

// GetPlayCount returns one maker's running play count
func (h *handler) GetPlayCount(c *gin.Context) {
	makerID, err := strconv.ParseInt(c.Param("makerId"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid maker id")
		return
	}

	count, err := h.service.GetPlayCount(c.Request.Context(), makerID)
	if err != nil {
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to get play count")
		return
	}

	c.JSON(http.StatusOK, playCountResponse{Count: count})
}

// GetPlayCountMany returns running play counts for a comma-separated maker id
// list; makers without a counter are omitted from the response
func (h *handler) GetPlayCountMany(c *gin.Context) {
	parts := strings.Split(c.Param("makerId"), ",")
	makerIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		makerID, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			respondBadRequest(c, "Invalid maker id list", part)
			return
		}
		makerIDs = append(makerIDs, makerID)
	}

	counts, err := h.service.GetPlayCounts(c.Request.Context(), makerIDs)
	if err != nil {
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to get play counts")
		return
	}

	response := make([]makerPlayCountResponse, 0, len(counts))
	for _, count := range counts {
		response = append(response, makerPlayCountResponse{MakerID: count.MakerID, PlayCount: count.PlayCount})
	}
	c.JSON(http.StatusOK, response)
}

// GetRanking returns makers ordered by play count descending
func (h *handler) GetRanking(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondBadRequest(c, "Invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.service.GetRanking(c.Request.Context(), limit)
	if err != nil {
		var unavailable *domain.StorageUnavailableError
		if errors.As(err, &unavailable) {
			respondStorageUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to get ranking")
		return
	}

	makerIDs := make([]int64, 0, len(entries))
	for _, entry := range entries {
		makerIDs = append(makerIDs, entry.MakerID)
	}
	c.JSON(http.StatusOK, rankingResponse{MakerIDList: makerIDs})
}

// UpdateRanking triggers an asynchronous full-window recompute across all
// instances; the response only acknowledges that the command was published
func (h *handler) UpdateRanking(c *gin.Context) {
	var req updateRankingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	since, err := time.Parse(time.RFC3339, req.Since)
	if err != nil {
		respondValidationError(c, "date format is invalid")
		return
	}
	until, err := time.Parse(time.RFC3339, req.Until)
	if err != nil {
		respondValidationError(c, "date format is invalid")
		return
	}

	if _, err := h.service.TriggerRankingUpdate(c.Request.Context(), domain.TimeRange{Since: since, Until: until}); err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			respondValidationError(c, validation.Error())
			return
		}
		respondInternalError(c, err, "Failed to trigger ranking update")
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "ok"})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
