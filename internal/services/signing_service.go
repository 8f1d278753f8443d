package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haszKEJL/Projekt-PAI/internal/blob"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"github.com/haszKEJL/Projekt-PAI/internal/pdf"
	"github.com/haszKEJL/Projekt-PAI/internal/signature"
	"github.com/haszKEJL/Projekt-PAI/internal/store"
	"github.com/haszKEJL/Projekt-PAI/pkg/metrics"
	"go.uber.org/zap"
)

var (
	// ErrAlreadySigned means the uploaded document itself carries an
	// embedded signature block.
	ErrAlreadySigned = errors.New("document is already signed")
	// ErrDuplicateContent re-exports the store sentinel for callers that
	// only import the service layer.
	ErrDuplicateContent = store.ErrDuplicateContent
	ErrPendingNotFound  = errors.New("pending signature not found or expired")
	ErrArtifactMissing  = errors.New("signed artifact is missing from storage")
)

// SigningService drives the two-phase signing protocol and the stateless
// verification query.
//
// Prepare stashes the upload and returns the content hash the client signs
// locally. Commit re-derives that hash from the stashed bytes, embeds the
// signature into an annotated copy and commits the record; the pending
// entry survives commit failures other than duplicates so the client can
// retry without re-uploading.
type SigningService struct {
	records *store.RecordStore
	pending *store.PendingStore
	blobs   *blob.Store
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
}

func NewSigningService(
	records *store.RecordStore,
	pending *store.PendingStore,
	blobs *blob.Store,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *SigningService {
	return &SigningService{
		records: records,
		pending: pending,
		blobs:   blobs,
		logger:  logger.With(zap.String("service", "signing_service")),
		metrics: metricsCollector,
	}
}

type PrepareResult struct {
	ContentHash      string
	PendingHandle    string
	OriginalFilename string
	FallbackHash     bool
}

type CommitResult struct {
	RecordID         string
	ArtifactHandle   string
	OriginalFilename string
}

type VerifyResult struct {
	Valid    bool
	Reason   signature.Reason
	Detail   string
	Signer   *pdf.SignerMetadata
	SignedAt *time.Time
	RecordID string
}

// Prepare hashes the upload, runs the advisory duplicate checks and stashes
// the bytes for the commit phase. The returned hash is what the client
// signs with its private key.
func (ss *SigningService) Prepare(ctx context.Context, data []byte, filename string) (*PrepareResult, error) {
	start := time.Now()

	if pdf.HasSignatureField(data) {
		return nil, ErrAlreadySigned
	}

	digest := pdf.Hash(data)
	if digest.Fallback {
		ss.logger.Warn("Content hash degraded to raw bytes, PDF could not be parsed",
			zap.String("filename", filename))
	}

	// Advisory pre-check only; the unique index at commit is the authority.
	if existing, err := ss.records.FindByHash(ctx, digest.B64); err == nil {
		return nil, duplicateError(existing)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	tempHandle, err := ss.blobs.Put(data)
	if err != nil {
		return nil, fmt.Errorf("failed to stash upload: %w", err)
	}

	entry := ss.pending.Put(tempHandle, digest.B64, filename, digest.Fallback)

	ss.metrics.IncrementCounter("signing.prepared", nil)
	ss.metrics.ObserveSize("signing.upload_bytes", float64(len(data)))
	ss.metrics.ObserveLatency("signing.prepare", time.Since(start))

	ss.logger.Info("Prepared document for signing",
		zap.String("pending_handle", entry.Handle),
		zap.String("content_hash", digest.B64),
		zap.Bool("fallback_hash", digest.Fallback),
	)

	return &PrepareResult{
		ContentHash:      digest.B64,
		PendingHandle:    entry.Handle,
		OriginalFilename: filename,
		FallbackHash:     digest.Fallback,
	}, nil
}

// Commit finishes the protocol: consumes the pending entry, re-derives the
// content hash from the stashed bytes (the client-reported hash is never
// trusted), embeds the signature and commits the record. On a duplicate the
// annotated artifact is discarded and nothing is mutated.
func (ss *SigningService) Commit(
	ctx context.Context,
	pendingHandle string,
	signatureB64 string,
	publicKeyJSON string,
	signer pdf.SignerMetadata,
	ownerID uint,
) (*CommitResult, error) {
	start := time.Now()

	// Fail on garbage transport encodings before touching any state.
	if _, err := signature.DecodeSignature(signatureB64); err != nil {
		return nil, err
	}
	if _, err := signature.DecodePublicKey(publicKeyJSON); err != nil {
		return nil, err
	}

	entry, ok := ss.pending.Take(pendingHandle)
	if !ok {
		return nil, ErrPendingNotFound
	}

	data, err := ss.blobs.Get(entry.TempHandle)
	if err != nil {
		return nil, ErrPendingNotFound
	}

	digest := pdf.Hash(data)

	// Authoritative-path duplicate check, closing most of the window
	// between prepare and commit. The unique index below closes the rest.
	if existing, err := ss.records.FindByHash(ctx, digest.B64); err == nil {
		ss.discardTemp(entry)
		return nil, duplicateError(existing)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		ss.pending.Restore(entry)
		return nil, err
	}

	block := &pdf.SignatureBlock{
		Signature:   signatureB64,
		ContentHash: digest.B64,
		PublicKey:   publicKeyJSON,
		Signer:      signer,
		Filename:    entry.OriginalFilename,
		SignedAt:    time.Now().UTC(),
		Algorithm:   signature.Algorithm,
	}

	annotated, err := pdf.Annotate(data, block)
	if err != nil {
		ss.pending.Restore(entry)
		return nil, fmt.Errorf("failed to annotate document: %w", err)
	}

	artifactHandle, err := ss.blobs.Put(annotated)
	if err != nil {
		ss.pending.Restore(entry)
		return nil, fmt.Errorf("failed to store signed artifact: %w", err)
	}

	record := &models.SignatureRecord{
		ContentHash:      digest.B64,
		SignatureB64:     signatureB64,
		PublicKeyJWK:     publicKeyJSON,
		SignerName:       signer.Name,
		SignerLocation:   signer.Location,
		SignerReason:     signer.Reason,
		SignerContact:    signer.Contact,
		OriginalFilename: entry.OriginalFilename,
		ArtifactHandle:   artifactHandle,
		OwnerID:          ownerID,
	}

	if err := ss.records.Commit(ctx, record); err != nil {
		if derr := ss.blobs.Delete(artifactHandle); derr != nil {
			ss.logger.Warn("Failed to discard artifact after commit failure", zap.Error(derr))
		}
		if errors.Is(err, store.ErrDuplicateContent) {
			// Lost the race; the content is signed either way.
			ss.discardTemp(entry)
			ss.metrics.IncrementCounter("signing.duplicate_race_lost", nil)
			if existing, ferr := ss.records.FindByHash(ctx, digest.B64); ferr == nil {
				return nil, duplicateError(existing)
			}
			return nil, ErrDuplicateContent
		}
		ss.pending.Restore(entry)
		return nil, err
	}

	ss.discardTemp(entry)

	ss.metrics.IncrementCounter("signing.committed", nil)
	ss.metrics.ObserveLatency("signing.commit", time.Since(start))

	ss.logger.Info("Signature committed",
		zap.String("record_id", record.ID),
		zap.String("content_hash", record.ContentHash),
		zap.String("signer", signer.Name),
	)

	return &CommitResult{
		RecordID:         record.ID,
		ArtifactHandle:   artifactHandle,
		OriginalFilename: entry.OriginalFilename,
	}, nil
}

// Verify is a stateless query: hash the document, find a key, check the
// signature. An inline key takes precedence over the stored record's key.
// Every input maps to a structured result; "not valid" is an answer, not an
// error.
func (ss *SigningService) Verify(ctx context.Context, data []byte, inlineKeyJSON string) *VerifyResult {
	start := time.Now()
	defer func() {
		ss.metrics.IncrementCounter("signing.verifications", nil)
		ss.metrics.ObserveLatency("signing.verify", time.Since(start))
	}()

	digest := pdf.Hash(data)

	var record *models.SignatureRecord
	if found, err := ss.records.FindByHash(ctx, digest.B64); err == nil {
		record = found
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return &VerifyResult{Valid: false, Reason: signature.ReasonInternal, Detail: err.Error()}
	}

	signatureB64 := ""
	keyJSON := inlineKeyJSON
	var signer *pdf.SignerMetadata
	var signedAt *time.Time
	recordID := ""

	switch {
	case record != nil:
		signatureB64 = record.SignatureB64
		if keyJSON == "" {
			keyJSON = record.PublicKeyJWK
		}
		signer = &pdf.SignerMetadata{
			Name:     record.SignerName,
			Location: record.SignerLocation,
			Reason:   record.SignerReason,
			Contact:  record.SignerContact,
		}
		createdAt := record.CreatedAt
		signedAt = &createdAt
		recordID = record.ID
	default:
		// No record for this content hash. An embedded block can still be
		// checked against an inline key; without either the document is
		// simply not signed, which is distinct from an invalid signature.
		block, err := pdf.ExtractSignatureBlock(data)
		if err != nil || keyJSON == "" {
			return &VerifyResult{Valid: false, Reason: signature.ReasonNotSigned,
				Detail: "no signature record matches this content"}
		}
		signatureB64 = block.Signature
		blockSigner := block.Signer
		signer = &blockSigner
		blockSignedAt := block.SignedAt
		signedAt = &blockSignedAt
	}

	outcome := signature.Verify(signatureB64, keyJSON, digest.B64)
	result := &VerifyResult{
		Valid:  outcome.Valid,
		Reason: outcome.Reason,
		Detail: outcome.Detail,
	}
	if outcome.Valid {
		result.Signer = signer
		result.SignedAt = signedAt
		result.RecordID = recordID
	}
	return result
}

// Download returns the annotated artifact for a committed record.
func (ss *SigningService) Download(ctx context.Context, recordID string) (string, []byte, error) {
	record, err := ss.records.FindByID(ctx, recordID)
	if err != nil {
		return "", nil, err
	}
	if record.ArtifactHandle == "" {
		return "", nil, ErrArtifactMissing
	}

	data, err := ss.blobs.Get(record.ArtifactHandle)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return "", nil, ErrArtifactMissing
		}
		return "", nil, err
	}

	filename := record.OriginalFilename
	if filename == "" {
		filename = "signed_document.pdf"
	}
	return filename, data, nil
}

func (ss *SigningService) discardTemp(entry store.PendingSignature) {
	if err := ss.blobs.Delete(entry.TempHandle); err != nil {
		ss.logger.Debug("Temp blob already gone", zap.String("handle", entry.TempHandle), zap.Error(err))
	}
}

// duplicateError wraps ErrDuplicateContent with the prior signer's name and
// timestamp for the conflict response.
func duplicateError(existing *models.SignatureRecord) error {
	name := existing.SignerName
	if name == "" {
		name = "an unknown signer"
	}
	return fmt.Errorf("%w: signed by %s at %s",
		ErrDuplicateContent, name, existing.CreatedAt.UTC().Format(time.RFC3339))
}
