package connector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

const (
	cloudCodeEndpoint = "https://cloudcode-pa.googleapis.com"
	cloudCodeVersion  = "v1internal"
)

// OAuthTokenStore persists and refreshes a Gemini-CLI OAuth2 token, the
// repurposed analogue of GeminiTokenStorage.
type OAuthTokenStore struct {
	Path      string
	ProjectID string
	Email     string

	mu     sync.Mutex
	config *oauth2.Config
	token  *oauth2.Token
}

type oauthFileShape struct {
	Token     *oauth2.Token `json:"token"`
	ProjectID string        `json:"project_id"`
	Email     string        `json:"email"`
}

// LoadOrBootstrap reads a cached token from Path, or if absent walks the
// interactive OAuth consent flow: it opens the consent URL in the user's
// default browser (skratchdot/open-golang) and blocks until codeCh yields
// the authorization code the caller captured from the redirect.
func LoadOrBootstrap(path string, cfg *oauth2.Config, codeCh <-chan string) (*OAuthTokenStore, error) {
	store := &OAuthTokenStore{Path: path, config: cfg}
	if raw, err := os.ReadFile(path); err == nil {
		var shape oauthFileShape
		if err := json.Unmarshal(raw, &shape); err == nil && shape.Token != nil {
			store.token = shape.Token
			store.ProjectID = shape.ProjectID
			store.Email = shape.Email
			return store, nil
		}
	}

	consentURL := cfg.AuthCodeURL("state", oauth2.AccessTypeOffline)
	log.Infof("gemini-cli: opening browser for OAuth consent: %s", consentURL)
	if err := open.Run(consentURL); err != nil {
		log.Warnf("gemini-cli: could not open browser automatically, visit manually: %s", consentURL)
	}

	code, ok := <-codeCh
	if !ok {
		return nil, fmt.Errorf("gemini-cli: oauth bootstrap cancelled before a code was received")
	}
	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("gemini-cli: exchanging code: %w", err)
	}
	store.token = token
	if err := store.save(); err != nil {
		log.Warnf("gemini-cli: failed to persist token: %v", err)
	}
	return store, nil
}

func (s *OAuthTokenStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(oauthFileShape{Token: s.token, ProjectID: s.ProjectID, Email: s.Email})
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, raw, 0o600)
}

func (s *OAuthTokenStore) httpClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s.config.TokenSource(ctx, s.token))
}

// GeminiCLIConnector drives the Cloud Code Assist API with an OAuth2
// bearer token instead of an API key, tracking a persisted daily quota
// counter
type GeminiCLIConnector struct {
	store *OAuthTokenStore
	quota *quotaCounter
	http  *http.Client

	mu     sync.RWMutex
	models []string
}

// NewGeminiCLIConnector builds a connector over an already-bootstrapped
// token store, with its daily counter persisted at quotaPath and
// thresholded against dailyLimit (0 disables threshold logging).
func NewGeminiCLIConnector(store *OAuthTokenStore, quotaPath string, dailyLimit int) *GeminiCLIConnector {
	return &GeminiCLIConnector{
		store: store,
		quota: newQuotaCounter(quotaPath, dailyLimit),
		http:  store.httpClient(context.Background()),
	}
}

func (c *GeminiCLIConnector) Backend() string { return "gemini-cli" }

func (c *GeminiCLIConnector) SetModels(models []string) {
	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
}

func (c *GeminiCLIConnector) Models(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models, nil
}

func (c *GeminiCLIConnector) ChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) (*session.Response, *apierr.Error) {
	c.quota.Increment()
	body := c.wrapRequest(req, model)

	httpResp, aerr := c.do(ctx, "generateContent", body, false)
	if aerr != nil {
		return nil, aerr
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("gemini-cli: reading response: %v", err))
	}
	return decodeCloudCodeResponse(raw)
}

func (c *GeminiCLIConnector) StreamChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) <-chan StreamChunk {
	c.quota.Increment()
	body := c.wrapRequest(req, model)

	httpResp, aerr := c.do(ctx, "streamGenerateContent", body, true)
	if aerr != nil {
		return sendErr(aerr)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			payload := bytes.TrimSpace(line[len("data:"):])
			resp, aerr := decodeCloudCodeResponse(payload)
			if aerr != nil {
				select {
				case out <- StreamChunk{Err: aerr, Done: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- StreamChunk{Response: resp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Err: apierr.Transient(fmt.Sprintf("gemini-cli: stream read: %v", err)), Done: true}:
			default:
			}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out
}

// wrapRequest builds the Cloud Code Assist envelope: project + model at
// the top level, the Gemini-shaped request nested under "request".
func (c *GeminiCLIConnector) wrapRequest(req *session.Request, model string) []byte {
	inner := buildGeminiBody(req)
	envelope := map[string]json.RawMessage{
		"project": json.RawMessage(fmt.Sprintf("%q", c.store.ProjectID)),
		"model":   json.RawMessage(fmt.Sprintf("%q", model)),
		"request": inner,
	}
	raw, _ := json.Marshal(envelope)
	return raw
}

func (c *GeminiCLIConnector) do(ctx context.Context, endpoint string, body []byte, stream bool) (*http.Response, *apierr.Error) {
	url := fmt.Sprintf("%s/%s:%s", cloudCodeEndpoint, cloudCodeVersion, endpoint)
	if stream {
		url += "?alt=sse"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("gemini-cli: building request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "google-api-nodejs-client/9.15.1")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.Cancelled()
		}
		return nil, apierr.Transient(fmt.Sprintf("gemini-cli: request failed: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		delaySeconds, ok := ratelimit.ParseRetryDelay(raw)
		delay := 30 * time.Second
		if ok {
			delay = time.Duration(delaySeconds * float64(time.Second))
		}
		return nil, apierr.RateLimited(delay, "gemini-cli: rate limited")
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		return nil, apierr.Unauthorized("gemini-cli: invalid or expired credentials")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, apierr.Terminal(resp.StatusCode, fmt.Sprintf("gemini-cli: upstream error: %s", string(raw)))
	}
	return resp, nil
}

// decodeCloudCodeResponse unwraps the Cloud Code Assist envelope's
// "response" field before delegating to the plain Gemini decoder.
func decodeCloudCodeResponse(raw []byte) (*session.Response, *apierr.Error) {
	inner := gjson.GetBytes(raw, "response")
	if inner.Exists() {
		return decodeGeminiResponse([]byte(inner.Raw))
	}
	return decodeGeminiResponse(raw)
}
