package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type User struct {
	gorm.Model
	Username     string   `gorm:"unique;not null"`
	Email        string   `gorm:"unique;not null"`
	PasswordHash string   `gorm:"not null"` // bcrypt hash
	Role         UserRole `gorm:"not null;default:'USER'"`
	ActiveStatus bool     `gorm:"not null;default:true"`
	LastLogin    time.Time

	Records []SignatureRecord `gorm:"foreignKey:OwnerID"`
}
