package aspire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aspire-sync/internal/config"

	"go.uber.org/zap"
)

// The Aspire Cloud API authenticates via POST /Authorization with
// {"ClientID": ..., "Secret": ...} and returns {"Token": ..., "RefreshToken": ...}.
// Data endpoints return raw JSON arrays, not an OData envelope. Pagination is
// $top/$skip, $filter is supported, $select is NOT (causes a 400).

const (
	// PageSize is the fixed page size for $top/$skip pagination.
	PageSize = 100

	// pageDelay bounds the request rate between pages.
	pageDelay = 100 * time.Millisecond

	// Tokens last ~60 minutes; refresh proactively at 50.
	tokenLifetime = 50 * time.Minute

	authTimeout  = 30 * time.Second
	fetchTimeout = 120 * time.Second

	// DefaultMonthsBack is the scheduled-start window for work tickets
	// when no cutoff date is given.
	DefaultMonthsBack = 6
)

// APIError is raised for any transport, authentication, or non-2xx failure.
type APIError struct {
	Message    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// Record is a raw entity as returned by the API, PascalCase keys.
type Record map[string]any

// Int64 reads a numeric field, tolerating the shapes JSON decoding produces.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Str reads a string field, empty when absent or not a string.
func (r Record) Str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// BoolDefault reads a boolean field with a fallback for absent values.
func (r Record) BoolDefault(key string, fallback bool) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return fallback
}

// FetchOptions carries the optional time bounds of a fetch. Cutoff is a
// date-bounded resync (ge, midnight UTC); ModifiedSince is the incremental
// bound (strictly gt). Both may be set; they are ANDed with the fixed
// per-entity predicates.
type FetchOptions struct {
	ModifiedSince *time.Time
	Cutoff        *time.Time
}

func (o FetchOptions) clauses(field string) []string {
	var out []string
	if o.Cutoff != nil {
		out = append(out, fmt.Sprintf("%s ge %sT00:00:00Z", field, o.Cutoff.Format("2006-01-02")))
	}
	if o.ModifiedSince != nil {
		out = append(out, fmt.Sprintf("%s gt %sZ", field, o.ModifiedSince.Format("2006-01-02T15:04:05")))
	}
	return out
}

// Client talks to the Aspire Cloud API. It owns its cached bearer token;
// callers should reuse one client per sync run.
type Client struct {
	baseURL  string
	clientID string
	secret   string

	authHTTP *http.Client
	dataHTTP *http.Client

	token        string
	tokenExpires time.Time

	pageSize int
	log      *zap.Logger
}

// NewClient validates credentials and returns a client. No network call is
// made until the first fetch.
func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	if cfg.AspireBaseURL == "" || cfg.AspireClientID == "" || cfg.AspireAPIKey == "" {
		return nil, &APIError{
			Message: "Aspire API credentials not configured. " +
				"Set ASPIRE_BASE_URL, ASPIRE_CLIENT_ID and ASPIRE_API_KEY",
		}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.AspireBaseURL, "/"),
		clientID: cfg.AspireClientID,
		secret:   cfg.AspireAPIKey,
		authHTTP: &http.Client{Timeout: authTimeout},
		dataHTTP: &http.Client{Timeout: fetchTimeout},
		pageSize: PageSize,
		log:      log,
	}, nil
}

func (c *Client) getAuthToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpires) {
		return c.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"ClientID": c.clientID,
		"Secret":   c.secret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Authorization", bytes.NewReader(payload))
	if err != nil {
		return "", &APIError{Message: fmt.Sprintf("failed to build auth request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.authHTTP.Do(req)
	if err != nil {
		return "", &APIError{Message: fmt.Sprintf("failed to authenticate with Aspire API: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{
			Message:    "failed to authenticate with Aspire API",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var auth struct {
		Token        string `json:"Token"`
		RefreshToken string `json:"RefreshToken"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", &APIError{Message: fmt.Sprintf("malformed auth response: %v", err)}
	}

	c.token = auth.Token
	c.tokenExpires = time.Now().Add(tokenLifetime)
	return c.token, nil
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	token, err := c.getAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.dataHTTP.Do(req)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("failed to connect to Aspire API: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Message:    fmt.Sprintf("Aspire API request to %s failed", endpoint),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return body, nil
}

// fetchAllPages walks $top/$skip pages until a short or empty page. A page
// that is not a JSON array ends pagination with a partial result.
func (c *Client) fetchAllPages(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	all := []Record{}
	skip := 0

	for {
		page := url.Values{}
		for k, v := range params {
			page[k] = v
		}
		page.Set("$top", strconv.Itoa(c.pageSize))
		page.Set("$skip", strconv.Itoa(skip))

		body, err := c.request(ctx, endpoint, page)
		if err != nil {
			return nil, err
		}

		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			c.log.Warn("unexpected Aspire API response format, stopping pagination",
				zap.String("endpoint", endpoint), zap.Error(err))
			break
		}

		if len(records) == 0 {
			break
		}
		all = append(all, records...)
		if len(records) < c.pageSize {
			break
		}
		skip += c.pageSize

		// Rate limiting - be nice to the API
		time.Sleep(pageDelay)
	}

	return all, nil
}

func filterParams(clauses []string) url.Values {
	params := url.Values{}
	if len(clauses) > 0 {
		params.Set("$filter", strings.Join(clauses, " and "))
	}
	return params
}

// FetchCompanies fetches companies. Companies use ModifiedDateTime, unlike
// most endpoints.
func (c *Client) FetchCompanies(ctx context.Context, opts FetchOptions) ([]Record, error) {
	return c.fetchAllPages(ctx, "Companies", filterParams(opts.clauses("ModifiedDateTime")))
}

// FetchContacts fetches active contacts that have an email address.
func (c *Client) FetchContacts(ctx context.Context, opts FetchOptions) ([]Record, error) {
	clauses := []string{"Email ne null and Active eq true"}
	clauses = append(clauses, opts.clauses("ModifiedDate")...)
	return c.fetchAllPages(ctx, "Contacts", filterParams(clauses))
}

// FetchProperties fetches active properties.
func (c *Client) FetchProperties(ctx context.Context, opts FetchOptions) ([]Record, error) {
	clauses := []string{"Active eq true"}
	clauses = append(clauses, opts.clauses("ModifiedDate")...)
	return c.fetchAllPages(ctx, "Properties", filterParams(clauses))
}

// FetchContracts fetches contract opportunities that are past draft and
// carry a renewal date.
func (c *Client) FetchContracts(ctx context.Context, opts FetchOptions) ([]Record, error) {
	clauses := []string{
		"OpportunityType eq 'Contract'",
		"OpportunityStatusName ne '1. Draft'",
		"RenewalDate ne null",
	}
	clauses = append(clauses, opts.clauses("ModifiedDate")...)
	return c.fetchAllPages(ctx, "Opportunities", filterParams(clauses))
}

// FetchWorkTickets fetches work tickets scheduled in the last
// DefaultMonthsBack months, or since the cutoff date when one is given.
// WorkTickets use LastModifiedDateTime, not ModifiedDate.
func (c *Client) FetchWorkTickets(ctx context.Context, opts FetchOptions) ([]Record, error) {
	scheduleCutoff := time.Now().AddDate(0, 0, -DefaultMonthsBack*30)
	if opts.Cutoff != nil {
		scheduleCutoff = *opts.Cutoff
	}

	clauses := []string{fmt.Sprintf("ScheduledStartDate ge %s", scheduleCutoff.Format("2006-01-02"))}
	clauses = append(clauses, opts.clauses("LastModifiedDateTime")...)
	return c.fetchAllPages(ctx, "WorkTickets", filterParams(clauses))
}

// FetchOpportunityServices fetches opportunity services, optionally limited
// to a set of opportunity ids.
func (c *Client) FetchOpportunityServices(ctx context.Context, opportunityIDs []int64) ([]Record, error) {
	params := url.Values{}
	if len(opportunityIDs) > 0 {
		ids := make([]string, len(opportunityIDs))
		for i, id := range opportunityIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		params.Set("$filter", fmt.Sprintf("OpportunityID in (%s)", strings.Join(ids, ",")))
	}
	return c.fetchAllPages(ctx, "OpportunityServices", params)
}

// TestConnection performs an auth round-trip.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.getAuthToken(ctx)
	return err == nil
}
