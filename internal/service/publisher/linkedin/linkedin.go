package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
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

const (
	shareContentKey      = "com.linkedin.ugc.ShareContent"
	memberVisibilityKey  = "com.linkedin.ugc.MemberNetworkVisibility"
	restliProtocolHeader = "X-Restli-Protocol-Version"
	restliIDHeader       = "X-RestLi-Id"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client implements publisher.Client for LinkedIn UGC posts.
type Client struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *zap.Logger
}

type credentials struct {
	accessToken    string
	author         string
	organizationID string
}

// UGC post payload

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type shareContent struct {
	ShareCommentary    shareText    `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []shareMedia `json:"media,omitempty"`
}

type shareText struct {
	Text string `json:"text"`
}

type shareMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}

type ugcResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type userInfoResponse struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		transport: transport,
		logger:    logger.With(zap.String("platform", models.PlatformLinkedIn.String())),
	}
}

func parseCredentials(secrets models.SecretBundle) (credentials, error) {
	values, err := publisher.RequireSecrets(models.PlatformLinkedIn, secrets, "accessToken")
	if err != nil {
		return credentials{}, err
	}

	creds := credentials{accessToken: values["accessToken"]}
	switch {
	case strings.TrimSpace(secrets.Get("organizationId")) != "":
		creds.organizationID = strings.TrimSpace(secrets.Get("organizationId"))
		creds.author = "urn:li:organization:" + creds.organizationID
	case strings.TrimSpace(secrets.Get("personId")) != "":
		creds.author = "urn:li:person:" + strings.TrimSpace(secrets.Get("personId"))
	default:
		return credentials{}, publisher.MissingSecretError{
			Platform: models.PlatformLinkedIn,
			Fields:   []string{"personId or organizationId"},
		}
	}
	return creds, nil
}

func (c *Client) httpClient(creds credentials) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.accessToken}),
			Base:   c.transport,
		},
	}
}

// Post creates one UGC share. Only the first media URL is attached.
func (c *Client) Post(ctx context.Context, secrets models.SecretBundle, input publisher.PostInput) publisher.PostResult {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return publisher.PermanentFailure(err.Error())
	}

	content := shareContent{
		ShareCommentary:    shareText{Text: input.Text},
		ShareMediaCategory: "NONE",
	}
	if len(input.MediaURLs) > 0 {
		content.ShareMediaCategory = "IMAGE"
		content.Media = []shareMedia{{
			Status:      "READY",
			OriginalURL: input.MediaURLs[0],
		}}
	}

	payload := ugcPost{
		Author:          creds.author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]shareContent{shareContentKey: content},
		Visibility:      map[string]string{memberVisibilityKey: "PUBLIC"},
	}

	postID, err := c.createPost(ctx, creds, payload)
	if err != nil {
		return publisher.FailedWith(err)
	}

	c.logger.Info("Share posted",
		zap.String("profile_id", input.ProfileID),
		zap.String("remote_id", postID))
	return publisher.Succeeded(postID)
}

func (c *Client) createPost(ctx context.Context, creds credentials, payload ugcPost) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(restliProtocolHeader, "2.0.0")

	resp, err := c.httpClient(creds).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp.StatusCode, data)
	}

	if id := resp.Header.Get(restliIDHeader); id != "" {
		return id, nil
	}

	var result ugcResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
	}
	if result.ID == "" {
		return "", fmt.Errorf("linkedin returned no post id")
	}
	return result.ID, nil
}

// Validate checks the bearer token without creating content. Member
// bundles are checked against userinfo, which needs the openid and profile
// scopes. Organization bundles are checked against the organization lookup;
// a token that only carries w_organization_social is refused that read with
// 403, which still proves LinkedIn accepted the token, so it counts as valid.
func (c *Client) Validate(ctx context.Context, secrets models.SecretBundle) (bool, error) {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return false, nil
	}

	if creds.organizationID != "" {
		return c.validateOrganization(ctx, creds)
	}

	status, data, err := c.get(ctx, creds, "/v2/userinfo")
	if err != nil {
		return false, err
	}
	if status < 200 || status >= 300 {
		return rejected(status, data)
	}

	var info userInfoResponse
	if err := json.Unmarshal(data, &info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return info.Sub != "", nil
}

func (c *Client) validateOrganization(ctx context.Context, creds credentials) (bool, error) {
	status, data, err := c.get(ctx, creds, "/v2/organizations/"+url.PathEscape(creds.organizationID))
	if err != nil {
		return false, err
	}

	switch {
	case status >= 200 && status < 300:
		return true, nil
	case status == http.StatusForbidden:
		c.logger.Debug("Organization lookup not permitted for token; treating token as valid",
			zap.String("organization_id", creds.organizationID))
		return true, nil
	default:
		return rejected(status, data)
	}
}

func (c *Client) get(ctx context.Context, creds credentials, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(restliProtocolHeader, "2.0.0")

	resp, err := c.httpClient(creds).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// rejected turns a non-2xx identity check into a verdict: permanent
// rejections are invalid, transient ones are returned as errors.
func rejected(status int, data []byte) (bool, error) {
	apiErr := decodeError(status, data)
	if !publisher.IsTransient(apiErr) {
		return false, nil
	}
	return false, apiErr
}

func decodeError(status int, data []byte) error {
	apiErr := &publisher.APIError{
		Platform:   models.PlatformLinkedIn,
		StatusCode: status,
	}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
