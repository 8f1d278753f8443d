package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"github.com/haszKEJL/Projekt-PAI/internal/services"
	"github.com/haszKEJL/Projekt-PAI/internal/store"
	"go.uber.org/zap"
)

// RecordsHandler serves the administrative record listing, inspection and
// deletion surface, plus artifact download.
type RecordsHandler struct {
	records *store.RecordStore
	signing *services.SigningService
	logger  *zap.Logger
}

func NewRecordsHandler(records *store.RecordStore, signing *services.SigningService, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		signing: signing,
		logger:  logger.With(zap.String("handler", "records")),
	}
}

func (h *RecordsHandler) List(c *gin.Context) {
	filter := store.ListFilter{
		SignerName: c.Query("signer"),
		Filename:   c.Query("filename"),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	records, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}

	summaries := make([]gin.H, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, gin.H{
			"id":                record.ID,
			"content_hash":      preview(record.ContentHash, 32),
			"signature_preview": preview(record.SignatureB64, 32),
			"signer_name":       record.SignerName,
			"signer_location":   record.SignerLocation,
			"signer_reason":     record.SignerReason,
			"original_filename": record.OriginalFilename,
			"created_at":        record.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_count": len(summaries),
		"records":     summaries,
	})
}

func (h *RecordsHandler) Get(c *gin.Context) {
	record, err := h.records.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Error("Failed to load record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load record"})
		return
	}

	c.JSON(http.StatusOK, recordResponse(record))
}

func (h *RecordsHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	err := h.records.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Error("Failed to delete record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "record_id": id})
}

func (h *RecordsHandler) Download(c *gin.Context) {
	filename, data, err := h.signing.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		case errors.Is(err, services.ErrArtifactMissing):
			c.JSON(http.StatusNotFound, gin.H{"error": "signed artifact is no longer stored"})
		default:
			h.logger.Error("Failed to download artifact", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to download artifact"})
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func recordResponse(record *models.SignatureRecord) gin.H {
	return gin.H{
		"id":                record.ID,
		"content_hash":      record.ContentHash,
		"signature":         record.SignatureB64,
		"public_key":        record.PublicKeyJWK,
		"signer_name":       record.SignerName,
		"signer_location":   record.SignerLocation,
		"signer_reason":     record.SignerReason,
		"signer_contact":    record.SignerContact,
		"original_filename": record.OriginalFilename,
		"created_at":        record.CreatedAt,
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
