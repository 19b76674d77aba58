package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/common"
)

const defaultGitHubAPIBase = "https://api.github.com"

// GitHubConfig identifies one file in one repository.
type GitHubConfig struct {
	// APIBase overrides the API endpoint (GitHub Enterprise, tests).
	// Defaults to https://api.github.com.
	APIBase string
	Owner   string
	Repo    string
	Path    string
	Branch  string
	Token   string
}

// GitHub is a RemoteClient backed by the GitHub contents API. The revision
// marker is the blob SHA returned on reads; an empty marker on Put creates
// the file.
type GitHub struct {
	cfg        GitHubConfig
	httpClient *http.Client
}

// NewGitHub returns a client for the configured file.
func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultGitHubAPIBase
	}
	return &GitHub{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GitHub) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimSuffix(g.cfg.APIBase, "/"), g.cfg.Owner, g.cfg.Repo, g.cfg.Path)
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
}

// Get fetches the file content and its blob SHA from the configured branch.
func (g *GitHub) Get(ctx context.Context) ([]byte, string, error) {
	url := g.contentsURL()
	if g.cfg.Branch != "" {
		url += "?ref=" + g.cfg.Branch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("github get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", common.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("github get: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("github get: decode response: %w", err)
	}

	// the API wraps base64 content across lines
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("github get: decode content: %w", err)
	}

	return raw, body.SHA, nil
}

// Put writes content to the configured path. rev is the blob SHA obtained
// from Get; leaving it empty creates a new file. A SHA mismatch surfaces as
// common.ErrRevisionConflict.
func (g *GitHub) Put(ctx context.Context, content []byte, rev string) error {
	payload := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch,omitempty"`
		SHA     string `json:"sha,omitempty"`
	}{
		Message: "update state snapshot",
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.cfg.Branch,
		SHA:     rev,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusPreconditionFailed, http.StatusUnprocessableEntity:
		return common.ErrRevisionConflict
	default:
		return fmt.Errorf("github put: unexpected status %d", resp.StatusCode)
	}
}
