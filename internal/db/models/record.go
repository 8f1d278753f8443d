package models

import (
	"time"
)

// SignatureRecord is one committed signature. Records are immutable once
// created: the only lifecycle operations are create (workflow commit) and
// delete (administrative). ContentHash is the natural key; the unique index
// is the authoritative guard against signing the same content twice.
type SignatureRecord struct {
	ID           string `gorm:"primaryKey"`
	ContentHash  string `gorm:"uniqueIndex;not null"`
	SignatureB64 string `gorm:"type:text;not null"`
	PublicKeyJWK string `gorm:"type:text;not null"`

	SignerName     string
	SignerLocation string
	SignerReason   string
	SignerContact  string

	OriginalFilename string
	ArtifactHandle   string

	OwnerID uint `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
