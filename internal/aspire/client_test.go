package aspire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aspire-sync/internal/config"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&config.Config{
		AspireBaseURL:  srv.URL,
		AspireClientID: "test-client",
		AspireAPIKey:   "test-secret",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, srv
}

func serveAuth(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]string{
		"Token":        "test-token",
		"RefreshToken": "test-refresh",
	})
}

func makePage(n, offset int) []map[string]any {
	page := make([]map[string]any, n)
	for i := range page {
		page[i] = map[string]any{"CompanyID": offset + i + 1}
	}
	return page
}

func TestFetchCompaniesPagination(t *testing.T) {
	authCalls := 0
	pages := [][]map[string]any{
		makePage(100, 0),
		makePage(100, 100),
		makePage(37, 200),
	}
	pageIdx := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
		authCalls++
		serveAuth(w)
	})
	mux.HandleFunc("/Companies", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization header = %q", got)
		}
		wantSkip := fmt.Sprintf("%d", pageIdx*100)
		if got := r.URL.Query().Get("$skip"); got != wantSkip {
			t.Errorf("$skip = %q, want %q", got, wantSkip)
		}
		if got := r.URL.Query().Get("$top"); got != "100" {
			t.Errorf("$top = %q, want 100", got)
		}
		json.NewEncoder(w).Encode(pages[pageIdx])
		pageIdx++
	})

	client, _ := newTestClient(t, mux)

	records, err := client.FetchCompanies(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchCompanies() error = %v", err)
	}
	if len(records) != 237 {
		t.Errorf("got %d records, want 237", len(records))
	}
	if authCalls != 1 {
		t.Errorf("auth called %d times, want 1 (token should be cached)", authCalls)
	}
	if got := records[236].Int64("CompanyID"); got != 237 {
		t.Errorf("last CompanyID = %d, want 237", got)
	}
}

func TestFetchFilters(t *testing.T) {
	since := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	cutoff := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		endpoint   string
		fetch      func(*Client) error
		wantFilter string
	}{
		{
			name:     "Contacts Incremental",
			endpoint: "/Contacts",
			fetch: func(c *Client) error {
				_, err := c.FetchContacts(context.Background(), FetchOptions{ModifiedSince: &since})
				return err
			},
			wantFilter: "Email ne null and Active eq true and ModifiedDate gt 2024-03-01T08:30:00Z",
		},
		{
			name:     "Properties Cutoff",
			endpoint: "/Properties",
			fetch: func(c *Client) error {
				_, err := c.FetchProperties(context.Background(), FetchOptions{Cutoff: &cutoff})
				return err
			},
			wantFilter: "Active eq true and ModifiedDate ge 2024-01-15T00:00:00Z",
		},
		{
			name:     "Contracts Unbounded",
			endpoint: "/Opportunities",
			fetch: func(c *Client) error {
				_, err := c.FetchContracts(context.Background(), FetchOptions{})
				return err
			},
			wantFilter: "OpportunityType eq 'Contract' and OpportunityStatusName ne '1. Draft' and RenewalDate ne null",
		},
		{
			name:     "Work Tickets Cutoff",
			endpoint: "/WorkTickets",
			fetch: func(c *Client) error {
				_, err := c.FetchWorkTickets(context.Background(), FetchOptions{Cutoff: &cutoff})
				return err
			},
			wantFilter: "ScheduledStartDate ge 2024-01-15 and LastModifiedDateTime ge 2024-01-15T00:00:00Z",
		},
		{
			name:     "Opportunity Services By ID",
			endpoint: "/OpportunityServices",
			fetch: func(c *Client) error {
				_, err := c.FetchOpportunityServices(context.Background(), []int64{11, 42})
				return err
			},
			wantFilter: "OpportunityID in (11,42)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFilter string
			mux := http.NewServeMux()
			mux.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
				serveAuth(w)
			})
			mux.HandleFunc(tt.endpoint, func(w http.ResponseWriter, r *http.Request) {
				gotFilter = r.URL.Query().Get("$filter")
				w.Write([]byte("[]"))
			})

			client, _ := newTestClient(t, mux)
			if err := tt.fetch(client); err != nil {
				t.Fatalf("fetch error = %v", err)
			}
			if gotFilter != tt.wantFilter {
				t.Errorf("$filter = %q, want %q", gotFilter, tt.wantFilter)
			}
		})
	}
}

func TestFetchStopsOnMalformedPage(t *testing.T) {
	pageIdx := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
		serveAuth(w)
	})
	mux.HandleFunc("/Companies", func(w http.ResponseWriter, r *http.Request) {
		if pageIdx == 0 {
			json.NewEncoder(w).Encode(makePage(100, 0))
		} else {
			w.Write([]byte(`{"error": "rate limited"}`))
		}
		pageIdx++
	})

	client, _ := newTestClient(t, mux)

	records, err := client.FetchCompanies(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchCompanies() error = %v", err)
	}
	if len(records) != 100 {
		t.Errorf("got %d records, want 100 (partial result)", len(records))
	}
}

func TestFetchErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
		serveAuth(w)
	})
	mux.HandleFunc("/Companies", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.FetchCompanies(context.Background(), FetchOptions{})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.Config{}, zap.NewNop())
	if err == nil {
		t.Fatal("NewClient() with empty credentials should fail")
	}
	if _, ok := err.(*APIError); !ok {
		t.Errorf("error type = %T, want *APIError", err)
	}
}

func TestTestConnection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, mux)
	if client.TestConnection(context.Background()) {
		t.Error("TestConnection() = true, want false on auth failure")
	}

	mux2 := http.NewServeMux()
	mux2.HandleFunc("/Authorization", func(w http.ResponseWriter, r *http.Request) {
		serveAuth(w)
	})
	client2, _ := newTestClient(t, mux2)
	if !client2.TestConnection(context.Background()) {
		t.Error("TestConnection() = false, want true")
	}
}
