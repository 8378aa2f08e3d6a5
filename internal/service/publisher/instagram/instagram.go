package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service/publisher"
)

const maxCarouselItems = 10

// Graph error codes that signal rate limiting.
var throttleCodes = map[int]bool{
	4:   true,
	17:  true,
	32:  true,
	613: true,
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client implements publisher.Client for Instagram business accounts through
// the Graph API container flow.
type Client struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *zap.Logger
}

type credentials struct {
	accessToken string
	accountID   string
}

type graphError struct {
	Error *struct {
		Message     string `json:"message"`
		Type        string `json:"type"`
		Code        int    `json:"code"`
		IsTransient bool   `json:"is_transient"`
	} `json:"error"`
}

type containerResponse struct {
	ID string `json:"id"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		transport: transport,
		logger:    logger.With(zap.String("platform", models.PlatformInstagram.String())),
	}
}

func parseCredentials(secrets models.SecretBundle) (credentials, error) {
	values, err := publisher.RequireSecrets(models.PlatformInstagram, secrets, "accessToken", "instagramAccountId")
	if err != nil {
		return credentials{}, err
	}
	return credentials{
		accessToken: values["accessToken"],
		accountID:   values["instagramAccountId"],
	}, nil
}

// Post creates a single image container or a carousel of up to ten children,
// then publishes it. Containers left behind by a failed sequence are not
// deleted.
func (c *Client) Post(ctx context.Context, secrets models.SecretBundle, input publisher.PostInput) publisher.PostResult {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return publisher.PermanentFailure(err.Error())
	}

	if len(input.MediaURLs) == 0 {
		return publisher.PermanentFailure("Instagram requires at least one image")
	}

	urls := input.MediaURLs
	if len(urls) > maxCarouselItems {
		c.logger.Debug("Dropping media beyond carousel limit",
			zap.Int("media_count", len(urls)),
			zap.Int("limit", maxCarouselItems))
		urls = urls[:maxCarouselItems]
	}

	s := c.session(creds)
	var created []string

	var containerID string
	if len(urls) == 1 {
		containerID, err = s.createContainer(ctx, url.Values{
			"image_url": {urls[0]},
			"caption":   {input.Text},
		})
	} else {
		containerID, err = s.createCarousel(ctx, urls, input.Text, &created)
	}
	if err != nil {
		c.abandon(input.ProfileID, created, err)
		return publisher.FailedWith(err)
	}
	created = append(created, containerID)

	mediaID, err := s.publish(ctx, containerID)
	if err != nil {
		c.abandon(input.ProfileID, created, err)
		return publisher.FailedWith(err)
	}

	c.logger.Info("Media published",
		zap.String("profile_id", input.ProfileID),
		zap.String("remote_id", mediaID),
		zap.Int("media_count", len(urls)))
	return publisher.Succeeded(mediaID)
}

func (c *Client) abandon(profileID string, containerIDs []string, cause error) {
	if len(containerIDs) == 0 {
		return
	}
	c.logger.Warn("Abandoning unpublished containers",
		zap.String("profile_id", profileID),
		zap.Strings("container_ids", containerIDs),
		zap.Error(cause))
}

// Validate reads the account's id and username. Token rejections report
// invalid; other failures are returned as errors.
func (c *Client) Validate(ctx context.Context, secrets models.SecretBundle) (bool, error) {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return false, nil
	}

	var account accountResponse
	endpoint := fmt.Sprintf("%s/%s?fields=id,username", c.baseURL, url.PathEscape(creds.accountID))
	if err := c.session(creds).call(ctx, http.MethodGet, endpoint, nil, &account); err != nil {
		var apiErr *publisher.APIError
		if errors.As(err, &apiErr) && !publisher.IsTransient(apiErr) {
			return false, nil
		}
		return false, err
	}
	return account.ID != "", nil
}

type session struct {
	client   *http.Client
	endpoint string
}

func (c *Client) session(creds credentials) *session {
	return &session{
		client: &http.Client{
			Timeout: c.timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.accessToken}),
				Base:   c.transport,
			},
		},
		endpoint: fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(creds.accountID)),
	}
}

func (s *session) createCarousel(ctx context.Context, urls []string, caption string, created *[]string) (string, error) {
	children := make([]string, 0, len(urls))
	for _, imageURL := range urls {
		childID, err := s.createContainer(ctx, url.Values{
			"image_url":        {imageURL},
			"is_carousel_item": {"true"},
		})
		if err != nil {
			return "", fmt.Errorf("failed to create carousel item: %w", err)
		}
		children = append(children, childID)
		*created = append(*created, childID)
	}

	parentID, err := s.createContainer(ctx, url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
		"caption":    {caption},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create carousel: %w", err)
	}
	return parentID, nil
}

func (s *session) createContainer(ctx context.Context, form url.Values) (string, error) {
	var resp containerResponse
	if err := s.call(ctx, http.MethodPost, s.endpoint+"/media", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram returned no container id")
	}
	return resp.ID, nil
}

func (s *session) publish(ctx context.Context, containerID string) (string, error) {
	var resp containerResponse
	err := s.call(ctx, http.MethodPost, s.endpoint+"/media_publish", url.Values{
		"creation_id": {containerID},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to publish container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram returned no media id")
	}
	return resp.ID, nil
}

func (s *session) call(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &publisher.APIError{
		Platform:   models.PlatformInstagram,
		StatusCode: status,
	}

	var body graphError
	if err := json.Unmarshal(data, &body); err == nil && body.Error != nil {
		apiErr.Message = body.Error.Message
		apiErr.Throttled = throttleCodes[body.Error.Code] || body.Error.IsTransient
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
