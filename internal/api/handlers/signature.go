package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/haszKEJL/Projekt-PAI/internal/api/middleware"
	"github.com/haszKEJL/Projekt-PAI/internal/pdf"
	"github.com/haszKEJL/Projekt-PAI/internal/services"
	"github.com/haszKEJL/Projekt-PAI/internal/signature"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a single PDF upload.
const maxUploadBytes = 32 << 20

type SignatureHandler struct {
	signing *services.SigningService
	logger  *zap.Logger
}

func NewSignatureHandler(signing *services.SigningService, logger *zap.Logger) *SignatureHandler {
	return &SignatureHandler{
		signing: signing,
		logger:  logger.With(zap.String("handler", "signature")),
	}
}

// signerMetadataRequest mirrors the metadata JSON the client sends along
// with prepare and commit.
type signerMetadataRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Reason   string `json:"reason"`
	Contact  string `json:"contact"`
	Filename string `json:"filename"`
}

func (r signerMetadataRequest) toSignerMetadata() pdf.SignerMetadata {
	return pdf.SignerMetadata{
		Name:     r.Name,
		Location: r.Location,
		Reason:   r.Reason,
		Contact:  r.Contact,
	}
}

// Prepare accepts a multipart PDF upload, returns the content hash the
// client must sign and an opaque handle for the commit phase.
func (h *SignatureHandler) Prepare(c *gin.Context) {
	data, filename, ok := h.readUpload(c, "file")
	if !ok {
		return
	}

	result, err := h.signing.Prepare(c.Request.Context(), data, filename)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadySigned):
			c.JSON(http.StatusConflict, gin.H{"error": "document is already signed"})
		case errors.Is(err, services.ErrDuplicateContent):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Prepare failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare document"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content_hash":      result.ContentHash,
		"pending_handle":    result.PendingHandle,
		"original_filename": result.OriginalFilename,
		"fallback_hash":     result.FallbackHash,
	})
}

// Commit accepts the client-produced signature for a pending upload and
// finishes the signing protocol.
func (h *SignatureHandler) Commit(c *gin.Context) {
	pendingHandle := c.PostForm("pending_handle")
	signatureB64 := c.PostForm("signature")
	publicKey := c.PostForm("public_key")
	if pendingHandle == "" || signatureB64 == "" || publicKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pending_handle, signature and public_key are required"})
		return
	}

	var meta signerMetadataRequest
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be valid JSON"})
			return
		}
	}

	var ownerID uint
	if user := middleware.CurrentUser(c); user != nil {
		ownerID = user.ID
	}

	result, err := h.signing.Commit(
		c.Request.Context(),
		pendingHandle,
		signatureB64,
		publicKey,
		meta.toSignerMetadata(),
		ownerID,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPendingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "pending signature not found or expired"})
		case errors.Is(err, services.ErrDuplicateContent):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, signature.ErrMalformedSignature),
			errors.Is(err, signature.ErrMalformedKey),
			errors.Is(err, signature.ErrMissingKeyField),
			errors.Is(err, signature.ErrUnsupportedKeyType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Commit failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to commit signature"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record_id":         result.RecordID,
		"artifact":          result.ArtifactHandle,
		"original_filename": result.OriginalFilename,
	})
}

// Verify checks an uploaded PDF against a public key supplied inline, as a
// file part, or looked up from the stored record for its content hash.
// Decided outcomes are 200 responses; "not valid" is not an error.
func (h *SignatureHandler) Verify(c *gin.Context) {
	data, _, ok := h.readUpload(c, "file")
	if !ok {
		return
	}

	keyJSON := c.PostForm("public_key")
	if keyJSON == "" {
		if keyFile, err := c.FormFile("public_key_file"); err == nil {
			f, err := keyFile.Open()
			if err == nil {
				raw, _ := io.ReadAll(io.LimitReader(f, 1<<20))
				f.Close()
				keyJSON = string(raw)
			}
		}
	}

	result := h.signing.Verify(c.Request.Context(), data, keyJSON)

	response := gin.H{
		"valid":  result.Valid,
		"reason": result.Reason,
	}
	if result.Detail != "" {
		response["detail"] = result.Detail
	}
	if result.Valid && result.Signer != nil {
		response["signer"] = result.Signer
		response["signed_at"] = result.SignedAt
		if result.RecordID != "" {
			response["record_id"] = result.RecordID
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *SignatureHandler) readUpload(c *gin.Context, field string) ([]byte, string, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return nil, "", false
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, "", false
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file upload"})
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file upload"})
		return nil, "", false
	}

	filename := fileHeader.Filename
	if filename == "" {
		filename = "document.pdf"
	}
	return data, filename, true
}
