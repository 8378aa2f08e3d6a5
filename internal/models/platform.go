package models

// Platform identifies a third-party social network.
type Platform string

const (
	PlatformX         Platform = "x"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// Platforms lists every platform a credential may be stored for.
var Platforms = []Platform{
	PlatformX,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformTikTok,
	PlatformYouTube,
}

func (p Platform) String() string {
	return string(p)
}

// IsValid reports whether p is one of the known platforms.
func (p Platform) IsValid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// CredentialStatus is the lifecycle state of a PlatformCredential.
type CredentialStatus string

const (
	StatusActive  CredentialStatus = "active"
	StatusError   CredentialStatus = "error"
	StatusExpired CredentialStatus = "expired"
	StatusRevoked CredentialStatus = "revoked"
)

func (s CredentialStatus) String() string {
	return string(s)
}
