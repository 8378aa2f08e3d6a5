package x

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service/publisher"
)

const (
	maxMedia = 4

	// maxStatusChecks bounds how often a media item still being processed
	// is polled before it is skipped.
	maxStatusChecks = 10

	usersMeEndpoint     = "https://api.twitter.com/2/users/me"
	mediaStatusEndpoint = "https://api.twitter.com/2/media/upload"
)

const (
	stateSucceeded  = "succeeded"
	stateInProgress = "in_progress"
	statePending    = "pending"
)

type Config struct {
	// HTTPClient is used as the base for every request. Its transport is
	// wrapped, never replaced.
	HTTPClient *http.Client
	Timeout    time.Duration
	Debug      bool
}

// Credentials is the OAuth 1.0a user-context tuple every request is signed with.
type Credentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

func parseCredentials(secrets models.SecretBundle) (Credentials, error) {
	values, err := publisher.RequireSecrets(models.PlatformX, secrets,
		"appKey", "appSecret", "accessToken", "accessSecret")
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		APIKey:       values["appKey"],
		APISecret:    values["appSecret"],
		AccessToken:  values["accessToken"],
		AccessSecret: values["accessSecret"],
	}, nil
}

type api interface {
	UploadMedia(ctx context.Context, media *publisher.Media) (string, error)
	CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error)
	VerifyCredentials(ctx context.Context) error
}

type mediaSource interface {
	Fetch(ctx context.Context, url string) (*publisher.Media, error)
}

// Client implements publisher.Client for X.
type Client struct {
	media  mediaSource
	newAPI func(Credentials) (api, error)
	logger *zap.Logger
}

func New(cfg Config, fetcher *publisher.MediaFetcher, logger *zap.Logger) *Client {
	c := &Client{
		media:  fetcher,
		logger: logger.With(zap.String("platform", models.PlatformX.String())),
	}
	c.newAPI = func(creds Credentials) (api, error) {
		return newGotwiAPI(cfg, creds)
	}
	return c
}

// Post uploads up to four media items, skipping any that fail, then creates
// the tweet with whatever media ids were obtained.
func (c *Client) Post(ctx context.Context, secrets models.SecretBundle, input publisher.PostInput) publisher.PostResult {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return publisher.PermanentFailure(err.Error())
	}

	client, err := c.newAPI(creds)
	if err != nil {
		return publisher.FailedWith(err)
	}

	urls := input.MediaURLs
	if len(urls) > maxMedia {
		c.logger.Debug("Dropping media beyond limit",
			zap.Int("media_count", len(urls)),
			zap.Int("limit", maxMedia))
		urls = urls[:maxMedia]
	}

	mediaIDs := make([]string, 0, len(urls))
	for i, mediaURL := range urls {
		mediaID, err := c.attach(ctx, client, mediaURL)
		if err != nil {
			c.logger.Warn("Skipping media that failed to upload",
				zap.String("profile_id", input.ProfileID),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	tweetID, err := client.CreateTweet(ctx, input.Text, mediaIDs)
	if err != nil {
		return publisher.FailedWith(fmt.Errorf("post tweet: %w", err))
	}

	c.logger.Info("Tweet posted",
		zap.String("profile_id", input.ProfileID),
		zap.String("remote_id", tweetID),
		zap.Int("media_count", len(mediaIDs)))
	return publisher.Succeeded(tweetID)
}

func (c *Client) attach(ctx context.Context, client api, mediaURL string) (string, error) {
	media, err := c.media.Fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	return client.UploadMedia(ctx, media)
}

// Validate signs a users/me lookup. A 401 or 403 answer means the tuple is
// invalid; other failures are returned as errors.
func (c *Client) Validate(ctx context.Context, secrets models.SecretBundle) (bool, error) {
	creds, err := parseCredentials(secrets)
	if err != nil {
		return false, nil
	}

	client, err := c.newAPI(creds)
	if err != nil {
		return false, err
	}

	if err := client.VerifyCredentials(ctx); err != nil {
		var apiErr *publisher.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// statusTransport records the status of the most recent response so gotwi
// errors can be classified by status code.
type statusTransport struct {
	base http.RoundTripper
	last int
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		t.last = resp.StatusCode
	}
	return resp, err
}

type gotwiAPI struct {
	client *gotwi.Client
	status *statusTransport
}

func newGotwiAPI(cfg Config, creds Credentials) (*gotwiAPI, error) {
	base := http.DefaultTransport
	timeout := cfg.Timeout
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
		if timeout == 0 {
			timeout = cfg.HTTPClient.Timeout
		}
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	status := &statusTransport{base: base}
	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Transport: status, Timeout: timeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           creds.AccessToken,
		OAuthTokenSecret:     creds.AccessSecret,
		APIKey:               creds.APIKey,
		APIKeySecret:         creds.APISecret,
		Debug:                cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, fmt.Errorf("X client not ready")
	}

	return &gotwiAPI{client: client, status: status}, nil
}

func (g *gotwiAPI) UploadMedia(ctx context.Context, media *publisher.Media) (string, error) {
	mediaType, category, err := resolveMediaType(media)
	if err != nil {
		return "", err
	}

	g.status.last = 0
	initRes, err := upload.Initialize(ctx, g.client, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(media.Data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", g.unwrap(err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(media.Data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	g.status.last = 0
	appendRes, err := upload.Append(ctx, g.client, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", g.unwrap(err))
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	g.status.last = 0
	finalizeRes, err := upload.Finalize(ctx, g.client, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", g.unwrap(err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	info := processingInfo{
		State:          string(finalizeRes.Data.ProcessingInfo.State),
		CheckAfterSecs: int(finalizeRes.Data.ProcessingInfo.CheckAfterSecs),
	}
	if err := awaitProcessing(ctx, info, func(ctx context.Context) (processingInfo, error) {
		return g.mediaStatus(ctx, mediaID)
	}); err != nil {
		return "", err
	}

	return mediaID, nil
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// awaitProcessing polls check until the media leaves the pending states,
// waiting check_after_secs between polls. Media still processing after
// maxStatusChecks polls is reported as an error.
func awaitProcessing(ctx context.Context, info processingInfo, check func(context.Context) (processingInfo, error)) error {
	for polls := 0; ; polls++ {
		switch info.State {
		case "", stateSucceeded:
			return nil
		case stateInProgress, statePending:
		default:
			if info.Error != nil && info.Error.Message != "" {
				return fmt.Errorf("media processing failed: state=%s: %s", info.State, info.Error.Message)
			}
			return fmt.Errorf("media processing failed: state=%s", info.State)
		}

		if polls >= maxStatusChecks {
			return fmt.Errorf("media still %s after %d status checks", info.State, polls)
		}

		timer := time.NewTimer(time.Duration(info.CheckAfterSecs) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		next, err := check(ctx)
		if err != nil {
			return fmt.Errorf("media status: %w", err)
		}
		info = next
	}
}

func (g *gotwiAPI) mediaStatus(ctx context.Context, mediaID string) (processingInfo, error) {
	res := &mediaStatusResponse{}
	g.status.last = 0
	if err := g.client.CallAPI(ctx, mediaStatusEndpoint, http.MethodGet, &mediaStatusParameters{mediaID: mediaID}, res); err != nil {
		return processingInfo{}, g.unwrap(err)
	}
	if res.Data.ProcessingInfo == nil {
		return processingInfo{State: stateSucceeded}, nil
	}
	return *res.Data.ProcessingInfo, nil
}

func (g *gotwiAPI) CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	input := &managetweettypes.CreateInput{
		Text: gotwi.String(text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	g.status.last = 0
	out, err := managetweet.Create(ctx, g.client, input)
	if err != nil {
		return "", g.unwrap(err)
	}

	id := gotwi.StringValue(out.Data.ID)
	if id == "" {
		return "", fmt.Errorf("X API returned no tweet id")
	}
	return id, nil
}

func (g *gotwiAPI) VerifyCredentials(ctx context.Context) error {
	res := &usersMeResponse{}
	g.status.last = 0
	if err := g.client.CallAPI(ctx, usersMeEndpoint, http.MethodGet, &usersMeParameters{}, res); err != nil {
		return g.unwrap(err)
	}
	if res.Data.ID == "" {
		return fmt.Errorf("X API returned no user id")
	}
	return nil
}

func (g *gotwiAPI) unwrap(err error) error {
	message := err.Error()
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		message = summarizeGotwiError(gwErr)
	}

	if g.status.last < http.StatusMultipleChoices {
		if gwErr == nil {
			return err
		}
		return errors.New(message)
	}
	return &publisher.APIError{
		Platform:   models.PlatformX,
		StatusCode: g.status.last,
		Message:    message,
	}
}

func resolveMediaType(media *publisher.Media) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	ext := ""
	if u, err := url.Parse(media.URL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	switch ext {
	case ".jpg", ".jpeg":
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case ".png":
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case ".gif":
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case ".webp":
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}

	for _, candidate := range []string{media.ContentType, http.DetectContentType(media.Data)} {
		switch {
		case strings.Contains(candidate, "jpeg"):
			return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(candidate, "png"):
			return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(candidate, "gif"):
			return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
		case strings.Contains(candidate, "webp"):
			return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
		}
	}

	return "", "", fmt.Errorf("unsupported image type for %q", media.URL)
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" && err.Detail != err.Title {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}
	return strings.Join(parts, "; ")
}

type usersMeParameters struct {
	accessToken string
}

func (p *usersMeParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *usersMeParameters) AccessToken() string {
	return p.accessToken
}

func (p *usersMeParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *usersMeParameters) Body() (io.Reader, error) {
	return nil, nil
}

func (p *usersMeParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type usersMeResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

func (usersMeResponse) HasPartialError() bool { return false }

type mediaStatusParameters struct {
	accessToken string
	mediaID     string
}

func (p *mediaStatusParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *mediaStatusParameters) AccessToken() string {
	return p.accessToken
}

func (p *mediaStatusParameters) ResolveEndpoint(endpointBase string) string {
	query := url.Values{}
	query.Set("command", "STATUS")
	query.Set("media_id", p.mediaID)
	return endpointBase + "?" + query.Encode()
}

func (p *mediaStatusParameters) Body() (io.Reader, error) {
	return nil, nil
}

func (p *mediaStatusParameters) ParameterMap() map[string]string {
	return map[string]string{
		"command":  "STATUS",
		"media_id": p.mediaID,
	}
}

type mediaStatusResponse struct {
	Data struct {
		ID             string          `json:"id"`
		ProcessingInfo *processingInfo `json:"processing_info"`
	} `json:"data"`
}

func (mediaStatusResponse) HasPartialError() bool { return false }
