package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostAttempt records the outcome of one dispatch through a credential.
type PostAttempt struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	CredentialID string    `gorm:"not null;size:36;index" json:"credential_id"`
	OwnerID      string    `gorm:"not null;size:255;index" json:"owner_id"`
	Platform     Platform  `gorm:"not null;size:50" json:"platform"`
	Success      bool      `gorm:"not null" json:"success"`
	RemoteID     string    `gorm:"size:255" json:"remote_id,omitempty"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	Transient    bool      `gorm:"not null;default:false" json:"transient"`
	MediaCount   int       `gorm:"not null;default:0" json:"media_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (a *PostAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
