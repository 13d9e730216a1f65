// Package ingest pulls workflow runs from the upstream source and commits
// them to the store through a single idempotent upsert path shared by the
// poll and webhook entries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SourceRun is one workflow run record as returned by the upstream API,
// prior to normalization.
type SourceRun struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	WorkflowID   int64      `json:"workflow_id"`
	RunNumber    int        `json:"run_number"`
	RunAttempt   int        `json:"run_attempt"`
	Status       string     `json:"status"`
	Conclusion   *string    `json:"conclusion"`
	Event        string     `json:"event"`
	HeadBranch   string     `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
	Actor        struct {
		Login string `json:"login"`
	} `json:"actor"`
}

// RunSource provides pages of run records for a repository, most recent
// first. Pages are 1-based.
type RunSource interface {
	ListRuns(ctx context.Context, repo string, page, perPage int) ([]SourceRun, error)
}

// GitHubSource implements RunSource against the GitHub Actions REST API.
type GitHubSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGitHubSource creates a RunSource for the given API base URL and token.
func NewGitHubSource(baseURL, token string, timeout time.Duration) *GitHubSource {
	return &GitHubSource{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// ListRuns fetches one page of workflow runs, newest first.
func (s *GitHubSource) ListRuns(ctx context.Context, repo string, page, perPage int) ([]SourceRun, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/actions/runs?%s", s.baseURL, repo, url.Values{
		"per_page": {fmt.Sprint(perPage)},
		"page":     {fmt.Sprint(page)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build runs request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs page %d for %s: %w", page, repo, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d for %s page %d", resp.StatusCode, repo, page)
	}

	var payload struct {
		WorkflowRuns []SourceRun `json:"workflow_runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode runs page %d for %s: %w", page, repo, err)
	}
	return payload.WorkflowRuns, nil
}
