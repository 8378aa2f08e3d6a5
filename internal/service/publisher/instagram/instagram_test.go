package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service/publisher"
)

var testSecrets = models.SecretBundle{
	"accessToken":        "ig-token",
	"instagramAccountId": "1789",
}

type graphCall struct {
	path string
	form map[string]string
	auth string
}

type fakeGraph struct {
	mu        sync.Mutex
	calls     []graphCall
	nextID    int
	failPath  string
	failAfter int
	failCode  int
	failBody  string
}

func (g *fakeGraph) handler(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r.ParseForm()
	form := make(map[string]string)
	for key := range r.PostForm {
		form[key] = r.PostForm.Get(key)
	}
	g.calls = append(g.calls, graphCall{path: r.URL.Path, form: form, auth: r.Header.Get("Authorization")})

	if g.failPath != "" && strings.HasSuffix(r.URL.Path, g.failPath) {
		if g.failAfter == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(g.failCode)
			w.Write([]byte(g.failBody))
			return
		}
		g.failAfter--
	}

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		w.Write([]byte(`{"id":"1789","username":"relay"}`))
		return
	}
	g.nextID++
	fmt.Fprintf(w, `{"id":"c%d"}`, g.nextID)
}

func (g *fakeGraph) paths() []string {
	paths := make([]string, 0, len(g.calls))
	for _, call := range g.calls {
		paths = append(paths, call.path)
	}
	return paths
}

func newTestClient(t *testing.T, graph *fakeGraph) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(graph.handler))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/v19.0"}, zap.NewNop())
}

func mediaURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
	}
	return urls
}

func TestPost_NoMediaRejectedWithoutCalls(t *testing.T) {
	graph := &fakeGraph{}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{Text: "caption"})

	assert.False(t, result.Success)
	assert.False(t, result.Transient)
	assert.Contains(t, result.ErrorMessage, "requires at least one image")
	assert.False(t, publisher.IsCredentialFailure(result.ErrorMessage))
	assert.Empty(t, graph.calls)
}

func TestPost_SingleImage(t *testing.T) {
	graph := &fakeGraph{}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(1),
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "c2", result.RemoteID)
	assert.Equal(t, []string{"/v19.0/1789/media", "/v19.0/1789/media_publish"}, graph.paths())
	assert.Equal(t, "caption", graph.calls[0].form["caption"])
	assert.Equal(t, "https://cdn.example.com/0.jpg", graph.calls[0].form["image_url"])
	assert.Equal(t, "c1", graph.calls[1].form["creation_id"])
	assert.Equal(t, "Bearer ig-token", graph.calls[0].auth)
}

func TestPost_Carousel(t *testing.T) {
	graph := &fakeGraph{}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(3),
	})

	require.True(t, result.Success, result.ErrorMessage)
	require.Len(t, graph.calls, 5)

	for _, child := range graph.calls[:3] {
		assert.Equal(t, "true", child.form["is_carousel_item"])
		assert.NotContains(t, child.form, "caption")
	}

	parent := graph.calls[3]
	assert.Equal(t, "CAROUSEL", parent.form["media_type"])
	assert.Equal(t, "c1,c2,c3", parent.form["children"])
	assert.Equal(t, "caption", parent.form["caption"])

	assert.Equal(t, "c4", graph.calls[4].form["creation_id"])
	assert.Equal(t, "c5", result.RemoteID)
}

func TestPost_CarouselCappedAtTen(t *testing.T) {
	graph := &fakeGraph{}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(12),
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Len(t, graph.calls, 12)
	assert.Equal(t, "c1,c2,c3,c4,c5,c6,c7,c8,c9,c10", graph.calls[10].form["children"])
}

func TestPost_AbortsOnChildFailure(t *testing.T) {
	graph := &fakeGraph{
		failPath:  "/media",
		failAfter: 1,
		failCode:  http.StatusBadRequest,
		failBody:  `{"error":{"message":"Only photo or video can be accepted as media type.","type":"OAuthException","code":9004}}`,
	}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(3),
	})

	assert.False(t, result.Success)
	assert.False(t, result.Transient)
	assert.Contains(t, result.ErrorMessage, "Only photo or video")
	assert.Len(t, graph.calls, 2)
}

func TestPost_ThrottledPublishIsTransient(t *testing.T) {
	graph := &fakeGraph{
		failPath: "/media_publish",
		failCode: http.StatusBadRequest,
		failBody: `{"error":{"message":"Application request limit reached","type":"OAuthException","code":4}}`,
	}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(1),
	})

	assert.False(t, result.Success)
	assert.True(t, result.Transient)
}

func TestPost_ExpiredTokenIsCredentialFailure(t *testing.T) {
	graph := &fakeGraph{
		failPath: "/media",
		failCode: http.StatusBadRequest,
		failBody: `{"error":{"message":"Error validating access token: Session has expired","type":"OAuthException","code":190}}`,
	}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{
		Text:      "caption",
		MediaURLs: mediaURLs(1),
	})

	assert.False(t, result.Success)
	assert.False(t, result.Transient)
	assert.True(t, publisher.IsCredentialFailure(result.ErrorMessage))
}

func TestPost_ServerErrorIsTransient(t *testing.T) {
	graph := &fakeGraph{
		failPath: "/media",
		failCode: http.StatusServiceUnavailable,
		failBody: `upstream unavailable`,
	}
	c := newTestClient(t, graph)

	result := c.Post(context.Background(), testSecrets, publisher.PostInput{MediaURLs: mediaURLs(1)})

	assert.False(t, result.Success)
	assert.True(t, result.Transient)
}

func TestValidate(t *testing.T) {
	graph := &fakeGraph{}
	c := newTestClient(t, graph)

	valid, err := c.Validate(context.Background(), testSecrets)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, "/v19.0/1789", graph.calls[0].path)

	graph = &fakeGraph{
		failPath: "/1789",
		failCode: http.StatusBadRequest,
		failBody: `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`,
	}
	c = newTestClient(t, graph)
	valid, err = c.Validate(context.Background(), testSecrets)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = c.Validate(context.Background(), models.SecretBundle{"accessToken": "t"})
	require.NoError(t, err)
	assert.False(t, valid)
}
