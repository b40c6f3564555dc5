package reso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves canned bodies for /Property and records the queries it saw
type fakeAPI struct {
	mu      sync.Mutex
	queries []url.Values
	auth    []string
	status  int
	body    string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query())
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, body := f.status, f.body
	f.mu.Unlock()

	if r.URL.Path != "/Property" {
		http.NotFound(w, r)
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (f *fakeAPI) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func newTestClient(t *testing.T, api *fakeAPI, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = "secret-key"
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	return client
}

const twoRecords = `{
	"@odata.nextLink": "https://api.example.com/Property?$skip=2",
	"value": [
		{"ListingId": "A1", "ListPrice": 425000.50, "StandardStatus": "Active", "City": "Austin",
		 "Media": [{"MediaURL": "https://img.example.com/1.jpg"}, {"MediaURL": ""}]},
		{"ListingId": "A2", "ListPrice": "399000", "StandardStatus": "Closed", "BedroomsTotal": null}
	]
}`

func TestFetchBatch_Success(t *testing.T) {
	api := &fakeAPI{body: twoRecords}
	client := newTestClient(t, api, nil)

	result := client.FetchBatch(context.Background(), 2, 0, nil)

	require.True(t, result.OK(), "unexpected error: %v", result.Err)
	assert.Equal(t, 2, result.Count())
	assert.True(t, result.HasNext())

	first, err := result.Records[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "A1", first.Key())
	require.NotNil(t, first.ListPrice)
	assert.True(t, decimal.RequireFromString("425000.5").Equal(*first.ListPrice))
	assert.Equal(t, "Austin", *first.City)
	assert.Len(t, first.Media, 2)

	second, err := result.Records[1].Decode()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(399000).Equal(*second.ListPrice))
	assert.Nil(t, second.BedroomsTotal)
	assert.Nil(t, second.City)

	assert.Equal(t, []string{"Bearer secret-key"}, api.auth)
}

func TestFetchBatch_MistypedRecordKeepsPage(t *testing.T) {
	api := &fakeAPI{body: `{"value": [
		{"ListingId": "B1", "ListPrice": 1, "StandardStatus": "Active", "StreetNumber": 742},
		{"ListingId": "B2", "ListPrice": 2, "StandardStatus": "Active"}
	]}`}
	client := newTestClient(t, api, nil)

	result := client.FetchBatch(context.Background(), 2, 0, nil)

	require.True(t, result.OK(), "unexpected error: %v", result.Err)
	require.Equal(t, 2, result.Count())
	assert.Equal(t, "B1", result.Records[0].Key())

	_, err := result.Records[0].Decode()
	assert.Error(t, err)
	_, err = result.Records[1].Decode()
	assert.NoError(t, err)
}

func TestRecord_Key(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"ListingId": "A1", "BedroomsTotal": "three"}`, "A1"},
		{`{"ListingId": 42}`, "42"},
		{`{"City": "Austin"}`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Record(tt.raw).Key(), tt.raw)
	}
}

func TestFetchBatch_Query(t *testing.T) {
	api := &fakeAPI{body: `{"value": []}`}
	client := newTestClient(t, api, func(cfg *Config) {
		cfg.Filter = "PropertyType eq 'Residential'"
		cfg.Select = []string{"ListingId", "ListPrice"}
	})

	watermark := time.Date(2024, 3, 1, 7, 30, 0, 0, time.FixedZone("EST", -5*3600))
	client.FetchBatch(context.Background(), 100, 200, &watermark)

	q := api.lastQuery()
	assert.Equal(t, "100", q.Get("$top"))
	assert.Equal(t, "200", q.Get("$skip"))
	assert.Equal(t, "ListingId", q.Get("$orderby"))
	assert.Equal(t, "ListingId,ListPrice", q.Get("$select"))
	assert.Equal(t,
		"PropertyType eq 'Residential' and ModificationTimestamp gt 2024-03-01T12:30:00Z",
		q.Get("$filter"))
}

func TestFetchBatch_NoWatermarkOmitsFilter(t *testing.T) {
	api := &fakeAPI{body: `{"value": []}`}
	client := newTestClient(t, api, nil)

	result := client.FetchBatch(context.Background(), 10, 0, nil)

	require.True(t, result.OK())
	assert.Equal(t, 0, result.Count())
	assert.False(t, result.HasNext())
	assert.NotNil(t, result.Records)
	_, hasFilter := api.lastQuery()["$filter"]
	assert.False(t, hasFilter)
}

func TestFetchBatch_NextPageLink(t *testing.T) {
	api := &fakeAPI{body: `{"value": [{"ListingId": "A1"}], "nextPageLink": "page-2"}`}
	client := newTestClient(t, api, nil)

	result := client.FetchBatch(context.Background(), 1, 0, nil)

	require.True(t, result.OK())
	assert.Equal(t, "page-2", result.NextLink)
}

func TestFetchBatch_Failures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantEnvelope bool
	}{
		{"server error", http.StatusInternalServerError, `{"error": "boom"}`, false},
		{"unauthorized", http.StatusUnauthorized, ``, false},
		{"not json", http.StatusOK, `<html>maintenance</html>`, true},
		{"missing value array", http.StatusOK, `{"results": []}`, true},
		{"value not an array", http.StatusOK, `{"value": {"ListingId": "A1"}}`, true},
		{"record not an object", http.StatusOK, `{"value": [42]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{status: tt.status, body: tt.body}
			client := newTestClient(t, api, nil)

			result := client.FetchBatch(context.Background(), 10, 0, nil)

			assert.False(t, result.OK())
			assert.Equal(t, 0, result.Count())
			assert.NotNil(t, result.Records)

			var envErr *EnvelopeError
			var transportErr *TransportError
			if tt.wantEnvelope {
				assert.True(t, errors.As(result.Err, &envErr), "expected EnvelopeError, got %v", result.Err)
			} else {
				require.True(t, errors.As(result.Err, &transportErr), "expected TransportError, got %v", result.Err)
				assert.Equal(t, tt.status, transportErr.StatusCode)
			}
		})
	}
}

func TestFetchBatch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := NewClient(Config{BaseURL: base, Timeout: time.Second}, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	result := client.FetchBatch(context.Background(), 10, 0, nil)

	var transportErr *TransportError
	require.True(t, errors.As(result.Err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
	assert.Equal(t, 0, result.Count())
}

func TestFetchByListingID(t *testing.T) {
	api := &fakeAPI{body: `{"value": [{"ListingId": "O'Neil-1", "StandardStatus": "Active"}]}`}
	client := newTestClient(t, api, nil)

	rec, err := client.FetchByListingID(context.Background(), "O'Neil-1")
	require.NoError(t, err)
	assert.Equal(t, "O'Neil-1", rec.Key())

	q := api.lastQuery()
	assert.Equal(t, "ListingId eq 'O''Neil-1'", q.Get("$filter"))
	assert.Equal(t, "1", q.Get("$top"))
}

func TestFetchByListingID_NotFound(t *testing.T) {
	api := &fakeAPI{body: `{"value": []}`}
	client := newTestClient(t, api, nil)

	_, err := client.FetchByListingID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientCredentials(t *testing.T) {
	tokenRequests := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "issued-token", "token_type": "bearer", "expires_in": 3600}`)
	}))
	defer tokenSrv.Close()

	api := &fakeAPI{body: `{"value": []}`}
	client := newTestClient(t, api, func(cfg *Config) {
		cfg.APIKey = "client-id"
		cfg.APISecret = "client-secret"
		cfg.TokenURL = tokenSrv.URL
	})

	require.True(t, client.FetchBatch(context.Background(), 1, 0, nil).OK())
	require.True(t, client.FetchBatch(context.Background(), 1, 1, nil).OK())

	assert.Equal(t, []string{"Bearer issued-token", "Bearer issued-token"}, api.auth)
	assert.Equal(t, 1, tokenRequests, "token is cached between requests")
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, testutil.NewTestLogger().Logger())
	assert.Error(t, err)
}
