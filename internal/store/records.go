// Package store persists signature records and tracks transient pending
// uploads awaiting their signature.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/haszKEJL/Projekt-PAI/internal/blob"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateContent means a committed record already exists for the
	// content hash. Raised by the unique index, so two racing commits for
	// the same hash produce exactly one success.
	ErrDuplicateContent = errors.New("content already signed")
	ErrRecordNotFound   = errors.New("signature record not found")
)

// RecordStore persists SignatureRecords. Records are write-once; the store
// exposes create, read and delete but no update.
type RecordStore struct {
	db     *gorm.DB
	blobs  *blob.Store
	logger *zap.Logger
}

func NewRecordStore(database *gorm.DB, blobs *blob.Store, logger *zap.Logger) *RecordStore {
	return &RecordStore{
		db:     database,
		blobs:  blobs,
		logger: logger.With(zap.String("component", "record_store")),
	}
}

// Commit inserts the record, relying on the unique index on content_hash as
// the atomic duplicate guard. There is deliberately no check-then-insert
// here; pre-checks elsewhere are advisory only.
func (rs *RecordStore) Commit(ctx context.Context, record *models.SignatureRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if err := rs.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateContent
		}
		return fmt.Errorf("failed to commit signature record: %w", err)
	}

	rs.logger.Info("Committed signature record",
		zap.String("record_id", record.ID),
		zap.String("content_hash", record.ContentHash),
		zap.String("signer", record.SignerName),
	)
	return nil
}

func (rs *RecordStore) FindByHash(ctx context.Context, contentHash string) (*models.SignatureRecord, error) {
	var record models.SignatureRecord
	err := rs.db.WithContext(ctx).First(&record, "content_hash = ?", contentHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (rs *RecordStore) FindByID(ctx context.Context, id string) (*models.SignatureRecord, error) {
	var record models.SignatureRecord
	err := rs.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	SignerName string
	Filename   string
	Limit      int
}

func (rs *RecordStore) List(ctx context.Context, filter ListFilter) ([]models.SignatureRecord, error) {
	query := rs.db.WithContext(ctx).Model(&models.SignatureRecord{}).Order("created_at DESC")

	if filter.SignerName != "" {
		query = query.Where("signer_name = ?", filter.SignerName)
	}
	if filter.Filename != "" {
		query = query.Where("original_filename = ?", filter.Filename)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []models.SignatureRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the record and releases its artifact blob. A blob that is
// already gone is logged and tolerated; the record deletion stands.
func (rs *RecordStore) Delete(ctx context.Context, id string) error {
	record, err := rs.FindByID(ctx, id)
	if err != nil {
		return err
	}

	result := rs.db.WithContext(ctx).Delete(&models.SignatureRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete signature record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent delete got there first; only one caller may succeed.
		return ErrRecordNotFound
	}

	if record.ArtifactHandle != "" {
		if err := rs.blobs.Delete(record.ArtifactHandle); err != nil {
			rs.logger.Warn("Artifact blob missing on record delete",
				zap.String("record_id", id),
				zap.String("artifact", record.ArtifactHandle),
				zap.Error(err),
			)
		}
	}

	rs.logger.Info("Deleted signature record", zap.String("record_id", id))
	return nil
}
