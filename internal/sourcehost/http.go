package sourcehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAdapter is a minimal REST client against a GitHub-shaped
// source-hosting API. It is deliberately thin: real repo/team
// creation, import, and webhook registration are out of scope for
// this core (spec §1); this just matches the interface's shape so the
// orchestrator is runnable against a test double or a real host.
type HTTPAdapter struct {
	BaseURL string
	Org     string
	Client  *http.Client
}

// NewHTTPAdapter builds an adapter targeting host/org with the
// teacher's usual short client timeout.
func NewHTTPAdapter(baseURL, org string) *HTTPAdapter {
	return &HTTPAdapter{BaseURL: baseURL, Org: org, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *HTTPAdapter) ProvisionRepository(ctx context.Context, name string, teams []string, importURL, webhookURL string) (bool, error) {
	payload := map[string]interface{}{
		"name":        name,
		"org":         a.Org,
		"teams":       teams,
		"import_url":  importURL,
		"webhook_url": webhookURL,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/repos", bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("provision repository %s: %w", name, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode < 300, nil
}

func (a *HTTPAdapter) GetRepositoryURL(ctx context.Context, repoID string) (string, error) {
	return fmt.Sprintf("https://%s/%s/%s", a.hostname(), a.Org, repoID), nil
}

func (a *HTTPAdapter) GetTeamURL(ctx context.Context, teamID string) (string, error) {
	return fmt.Sprintf("https://%s/orgs/%s/teams/%s", a.hostname(), a.Org, teamID), nil
}

func (a *HTTPAdapter) hostname() string {
	if a.BaseURL == "" {
		return "github.com"
	}
	return a.BaseURL
}
