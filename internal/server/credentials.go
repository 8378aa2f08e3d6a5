package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service"
	"github.com/ifuryst/relay/internal/store"
)

const (
	// ownerHeader carries the caller identity established by the upstream
	// authentication layer.
	ownerHeader = "X-User-ID"
	ownerKey    = "owner_id"
)

type storeCredentialsRequest struct {
	Platform    string            `json:"platform" binding:"required"`
	ProfileID   string            `json:"profileId" binding:"required"`
	ProfileName string            `json:"profileName"`
	Secrets     map[string]string `json:"secrets" binding:"required"`
}

type storeCredentialsResponse struct {
	ID          string                  `json:"id"`
	Platform    models.Platform         `json:"platform"`
	ProfileID   string                  `json:"profileId"`
	ProfileName string                  `json:"profileName"`
	Status      models.CredentialStatus `json:"status"`
	IsValid     bool                    `json:"isValid"`
}

type testPostRequest struct {
	Text      string   `json:"text"`
	MediaURLs []string `json:"mediaUrls"`
}

// credentialView is the redacted form of a credential; it never carries secrets.
type credentialView struct {
	ID              string                  `json:"id"`
	Platform        models.Platform         `json:"platform"`
	ProfileID       string                  `json:"profileId"`
	ProfileName     string                  `json:"profileName"`
	Status          models.CredentialStatus `json:"status"`
	LastValidatedAt *time.Time              `json:"lastValidatedAt,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func toView(cred models.PlatformCredential) credentialView {
	return credentialView{
		ID:              cred.ID,
		Platform:        cred.Platform,
		ProfileID:       cred.ExternalProfileID,
		ProfileName:     cred.ExternalProfileName,
		Status:          cred.Status,
		LastValidatedAt: cred.LastValidatedAt,
		CreatedAt:       cred.CreatedAt,
		UpdatedAt:       cred.UpdatedAt,
	}
}

func requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(ownerHeader))
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func (s *Server) handleStoreCredentials(c *gin.Context) {
	var req storeCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := c.GetString(ownerKey)
	cred, err := s.CredentialService.StoreCredentials(c.Request.Context(), owner,
		models.Platform(req.Platform), req.ProfileID, req.ProfileName, models.SecretBundle(req.Secrets))
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlatform) || errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Logger.Error("Failed to store credentials", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credentials"})
		return
	}

	isValid, err := s.CredentialService.ValidateCredentials(c.Request.Context(), cred.ID, owner)
	if err != nil {
		s.Logger.Error("Failed to validate stored credentials",
			zap.String("credential_id", cred.ID),
			zap.Error(err))
	}

	status := models.StatusError
	if isValid {
		status = models.StatusActive
	}
	if err != nil {
		status = cred.Status
	}

	c.JSON(http.StatusCreated, storeCredentialsResponse{
		ID:          cred.ID,
		Platform:    cred.Platform,
		ProfileID:   cred.ExternalProfileID,
		ProfileName: cred.ExternalProfileName,
		Status:      status,
		IsValid:     isValid,
	})
}

func (s *Server) handleListCredentials(c *gin.Context) {
	owner := c.GetString(ownerKey)

	var (
		creds []models.PlatformCredential
		err   error
	)
	if platform := c.Query("platform"); platform != "" {
		creds, err = s.CredentialService.GetPlatformCredentials(c.Request.Context(), owner, models.Platform(platform))
	} else {
		creds, err = s.CredentialService.GetUserCredentials(c.Request.Context(), owner)
	}
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlatform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Logger.Error("Failed to list credentials", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list credentials"})
		return
	}

	views := make([]credentialView, 0, len(creds))
	for _, cred := range creds {
		views = append(views, toView(cred))
	}
	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

func (s *Server) handleValidateCredentials(c *gin.Context) {
	isValid, err := s.CredentialService.ValidateCredentials(c.Request.Context(), c.Param("id"), c.GetString(ownerKey))
	if err != nil {
		s.respondLookupError(c, err, "Failed to validate credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{"isValid": isValid})
}

func (s *Server) handleDeleteCredentials(c *gin.Context) {
	if err := s.CredentialService.DeleteCredentials(c.Request.Context(), c.GetString(ownerKey), c.Param("id")); err != nil {
		s.respondLookupError(c, err, "Failed to delete credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleTestPost(c *gin.Context) {
	var req testPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.CredentialService.PostWithCredentials(c.Request.Context(),
		c.Param("id"), c.GetString(ownerKey), req.Text, req.MediaURLs)
	if err != nil {
		s.Logger.Error("Failed to dispatch test post",
			zap.String("credential_id", c.Param("id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch post"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetPostHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	attempts, err := s.CredentialService.GetPostHistory(c.Request.Context(), c.Param("id"), c.GetString(ownerKey), limit)
	if err != nil {
		s.respondLookupError(c, err, "Failed to get post history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": attempts})
}

func (s *Server) respondLookupError(c *gin.Context, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Credentials not found"})
		return
	}
	s.Logger.Error(message, zap.String("credential_id", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
