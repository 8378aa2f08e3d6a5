package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SecretBundle holds the platform-specific secret fields of a credential.
// Its shape is only known to the matching protocol client.
type SecretBundle map[string]string

// Scan implements the sql.Scanner interface
func (b *SecretBundle) Scan(value interface{}) error {
	if value == nil {
		*b = SecretBundle{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into SecretBundle", value)
	}

	if len(raw) == 0 {
		*b = SecretBundle{}
		return nil
	}

	bundle := SecretBundle{}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return fmt.Errorf("failed to decode secret bundle: %w", err)
	}
	*b = bundle
	return nil
}

// Value implements the driver.Valuer interface
func (b SecretBundle) Value() (driver.Value, error) {
	if b == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]string(b))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Get returns the value stored under key, or "" when absent.
func (b SecretBundle) Get(key string) string {
	if b == nil {
		return ""
	}
	return b[key]
}

// Clone returns a copy so callers cannot mutate a stored bundle.
func (b SecretBundle) Clone() SecretBundle {
	out := make(SecretBundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// PlatformCredential is one authorized publishing identity on one network
// for one owning user. (owner_id, platform, external_profile_id) is unique.
type PlatformCredential struct {
	ID                  string           `gorm:"primaryKey;size:36" json:"id"`
	OwnerID             string           `gorm:"not null;size:255;uniqueIndex:idx_credential_owner_platform_profile,priority:1" json:"owner_id"`
	Platform            Platform         `gorm:"not null;size:50;uniqueIndex:idx_credential_owner_platform_profile,priority:2" json:"platform"`
	ExternalProfileID   string           `gorm:"not null;size:255;uniqueIndex:idx_credential_owner_platform_profile,priority:3" json:"external_profile_id"`
	ExternalProfileName string           `gorm:"size:500" json:"external_profile_name"`
	SecretBundle        SecretBundle     `gorm:"type:jsonb;not null" json:"-"`
	Status              CredentialStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	LastValidatedAt     *time.Time       `json:"last_validated_at"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *PlatformCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	return nil
}

// IsActive reports whether the credential may be used for posting.
func (c *PlatformCredential) IsActive() bool {
	return c.Status == StatusActive
}
