package kubera

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

type recorded struct {
	method    string
	path      string
	body      string
	token     string
	timestamp string
	signature string
	ctype     string
}

type fakeKubera struct {
	mu       sync.Mutex
	requests []recorded
	status   int
}

func (f *fakeKubera) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			method:    r.Method,
			path:      r.URL.Path,
			body:      string(body),
			token:     r.Header.Get("x-api-token"),
			timestamp: r.Header.Get("x-timestamp"),
			signature: r.Header.Get("x-signature"),
			ctype:     r.Header.Get("Content-Type"),
		})
		status := f.status
		f.mu.Unlock()

		if status != 0 {
			http.Error(w, `{"errorCode":1,"message":"rate limited"}`, status)
			return
		}
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"data":{"asset":[
				{"id":"T1","name":"Checking","value":{"amount":152.3,"currency":"USD"}},
				{"id":"T2","name":"Empty","value":{"amount":null,"currency":"EUR"}}
			]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
}

func newTestClient(t *testing.T, fake *fakeKubera) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Timeout:   5 * time.Second,
		Now:       fixedNow,
	})
}

func TestFetchPortfolio_SignsRequestAndDecodesAssets(t *testing.T) {
	fake := &fakeKubera{}
	c := newTestClient(t, fake)

	items, err := c.FetchPortfolio(context.Background(), "p-123")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "T1", items[0].ID)
	assert.True(t, items[0].Value.Equal(decimal.RequireFromString("152.3")))
	assert.Equal(t, "USD", items[0].Currency)
	assert.True(t, items[1].Value.IsZero())

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/v3/data/portfolio/p-123", req.path)
	assert.Equal(t, "test-key", req.token)
	assert.Equal(t, "1700000000", req.timestamp)
	assert.Equal(t, "546ddd037345976fbc970b5dd9f11988ccd966598919c72fb62054dad2357620", req.signature)
	assert.Equal(t, "application/json", req.ctype)
}

func TestUpdateItem_SignsExactBody(t *testing.T) {
	fake := &fakeKubera{}
	c := newTestClient(t, fake)

	err := c.UpdateItem(context.Background(), "T1", decimal.RequireFromString("152.3"))
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v3/data/item/T1", req.path)
	assert.Equal(t, `{"value":152.3}`, req.body)
	assert.Equal(t, "3075bfb869254671e5e7e13d3097ef826eb9f276d25146dcecebd13ee0679104", req.signature)
}

func TestUpdateItem_NonSuccessStatusIsAPIError(t *testing.T) {
	fake := &fakeKubera{status: http.StatusTooManyRequests}
	c := newTestClient(t, fake)

	err := c.UpdateItem(context.Background(), "T1", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrAPI)

	var se *syncerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "T1", se.ItemID)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestFetchPortfolio_EmptyIDIsConfigError(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://unused", APIKey: "k", APISecret: "s"})
	_, err := c.FetchPortfolio(context.Background(), " ")
	assert.ErrorIs(t, err, syncerr.ErrConfig)
}

func TestClient_EmptySecretIsSignatureError(t *testing.T) {
	fake := &fakeKubera{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k"})

	err := c.UpdateItem(context.Background(), "T1", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, syncerr.ErrSignature)
	assert.Empty(t, fake.requests)
}

func TestClient_TransportErrorIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Options{BaseURL: url, APIKey: "k", APISecret: "s", Timeout: time.Second})
	_, err := c.FetchPortfolio(context.Background(), "p")
	assert.ErrorIs(t, err, syncerr.ErrAPI)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	fake := &fakeKubera{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", APISecret: "s", MaxRequestsPerMinute: 1})

	require.NoError(t, c.UpdateItem(context.Background(), "T1", decimal.NewFromInt(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.UpdateItem(ctx, "T1", decimal.NewFromInt(2))
	assert.ErrorIs(t, err, syncerr.ErrAPI)
	assert.Len(t, fake.requests, 1)
}
