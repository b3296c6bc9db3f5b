package summarizer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGithubAPI = "https://api.github.com"

// ReadmeFetcher downloads repository READMEs from the GitHub REST API.
type ReadmeFetcher struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewReadmeFetcher creates a fetcher. An empty baseURL means api.github.com and a nil client gets a 15s timeout.
func NewReadmeFetcher(baseURL, token string, client *http.Client) *ReadmeFetcher {
	if baseURL == "" {
		baseURL = defaultGithubAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ReadmeFetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// ParseRepoURL extracts owner and repository from a github.com URL.
// Trailing path segments such as /tree/main and a .git suffix are ignored.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Host)
	if (u.Scheme != "https" && u.Scheme != "http") || (host != "github.com" && host != "www.github.com") {
		return "", "", fmt.Errorf("%w: expected https://github.com/{owner}/{repo}", ErrInvalidURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: missing owner or repository", ErrInvalidURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

type readmeResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Fetch returns the decoded README of owner/repo.
func (f *ReadmeFetcher) Fetch(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/readme", f.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrReadmeNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: failed to fetch README: %s", ErrUpstream, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %v", ErrUpstream, err)
	}
	var payload readmeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: failed to parse README response: %v", ErrUpstream, err)
	}
	if payload.Encoding != "" && payload.Encoding != "base64" {
		return "", fmt.Errorf("%w: unsupported README encoding %q", ErrUpstream, payload.Encoding)
	}

	// GitHub wraps the base64 payload at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode README: %v", ErrUpstream, err)
	}
	return string(decoded), nil
}
