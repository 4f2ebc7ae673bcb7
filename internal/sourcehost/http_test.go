package sourcehost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPAdapterProvisionRepositorySuccess(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(server.URL, "cpsc310")
	ok, err := adapter.ProvisionRepository(context.Background(), "secap_abc123", []string{"team1"}, "https://github.com/org/bootstrap", "https://hooks/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected success for 201 response")
	}
	if gotMethod != http.MethodPost || gotPath != "/repos" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestHTTPAdapterProvisionRepositoryFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(server.URL, "cpsc310")
	ok, err := adapter.ProvisionRepository(context.Background(), "secap_abc123", nil, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected failure for 500 response")
	}
}

func TestHTTPAdapterURLHelpers(t *testing.T) {
	adapter := NewHTTPAdapter("", "cpsc310")

	repoURL, err := adapter.GetRepositoryURL(context.Background(), "secap_abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repoURL != "https://github.com/cpsc310/secap_abc123" {
		t.Fatalf("unexpected repo URL: %s", repoURL)
	}

	teamURL, err := adapter.GetTeamURL(context.Background(), "team1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if teamURL != "https://github.com/orgs/cpsc310/teams/team1" {
		t.Fatalf("unexpected team URL: %s", teamURL)
	}
}
