package reso

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	// maxBodyBytes bounds how much of a response is read
	maxBodyBytes = 32 << 20
	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 512
)

// BatchResult is the outcome of one page request.
// On failure Err is set and Records is empty.
type BatchResult struct {
	Records  []Record
	NextLink string
	Err      error
}

// OK reports whether the page was fetched and decoded
func (r BatchResult) OK() bool {
	return r.Err == nil
}

// Count returns the number of records in the page
func (r BatchResult) Count() int {
	return len(r.Records)
}

// HasNext reports whether the upstream advertised another page
func (r BatchResult) HasNext() bool {
	return r.NextLink != ""
}

// Client reads listings from a RESO Web API Property resource
type Client struct {
	baseURL    string
	httpClient *http.Client
	// bearer is sent as-is when no token source is configured
	bearer string
	filter string
	fields []string
	logger *slog.Logger
}

// NewClient builds a client from cfg. With a token URL the client authenticates
// through the OAuth2 client-credentials flow; otherwise the API key is a static bearer token.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reso base_url must be specified")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid reso base_url: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		filter:  cfg.Filter,
		fields:  cfg.Select,
		logger:  logger,
	}

	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.APIKey,
			ClientSecret: cfg.APISecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		c.httpClient = cc.Client(context.Background())
	} else {
		c.httpClient = &http.Client{}
		c.bearer = cfg.APIKey
	}
	c.httpClient.Timeout = cfg.Timeout

	return c, nil
}

// FetchBatch requests one page of listings ordered by ListingId.
// A non-nil watermark restricts the page to records modified after it.
// Failures are reported in the result, never returned.
func (c *Client) FetchBatch(ctx context.Context, limit, offset int, watermark *time.Time) BatchResult {
	query := c.buildQuery(limit, offset, watermark, "")

	c.logger.Debug("fetching listing batch",
		"limit", limit,
		"offset", offset,
		"watermark", watermark)

	env, err := c.get(ctx, query)
	if err != nil {
		c.logger.Error("listing batch fetch failed",
			"offset", offset,
			"error", err)
		return BatchResult{Records: []Record{}, Err: err}
	}

	records := env.Value
	if records == nil {
		records = []Record{}
	}

	return BatchResult{
		Records:  records,
		NextLink: env.nextLink(),
	}
}

// FetchByListingID returns the single upstream listing with the given id
func (c *Client) FetchByListingID(ctx context.Context, listingID string) (Record, error) {
	filter := "ListingId eq '" + strings.ReplaceAll(listingID, "'", "''") + "'"
	query := c.buildQuery(1, 0, nil, filter)

	env, err := c.get(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(env.Value) == 0 {
		return nil, ErrNotFound
	}
	return env.Value[0], nil
}

// buildQuery assembles the OData query options for a page request
func (c *Client) buildQuery(limit, offset int, watermark *time.Time, extraFilter string) url.Values {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(limit))
	q.Set("$skip", strconv.Itoa(offset))
	q.Set("$orderby", "ListingId")

	if len(c.fields) > 0 {
		q.Set("$select", strings.Join(c.fields, ","))
	}

	var filters []string
	if c.filter != "" {
		filters = append(filters, c.filter)
	}
	if extraFilter != "" {
		filters = append(filters, extraFilter)
	}
	if watermark != nil {
		filters = append(filters, "ModificationTimestamp gt "+watermark.UTC().Format(time.RFC3339))
	}
	if len(filters) > 0 {
		q.Set("$filter", strings.Join(filters, " and "))
	}

	return q
}

func (c *Client) get(ctx context.Context, query url.Values) (*envelope, error) {
	reqURL := c.baseURL + "/Property?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &TransportError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       snippet,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return decodeEnvelope(body)
}
