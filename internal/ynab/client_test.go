package ynab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/budgets/b1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"budget":{"id":"b1","name":"Home","currency_format":{"iso_code":"USD","currency_symbol":"$"}}}}`))
	})
	mux.HandleFunc("/budgets/b1/accounts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"accounts":[
			{"id":"a1","name":"Checking","type":"checking","balance":152300,"cleared_balance":150000,"deleted":false,"closed":false},
			{"id":"a2","name":"Old card","type":"creditCard","balance":-1,"cleared_balance":0,"deleted":false,"closed":true}
		]}}`))
	})
	mux.HandleFunc("/budgets/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"id":"404","name":"not_found"}}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBudgetAccounts(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL+"/", "tok", 5*time.Second)

	accounts, err := c.FetchBudgetAccounts(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	first := accounts[0]
	assert.Equal(t, "a1", first.ID)
	assert.Equal(t, "b1", first.BudgetID)
	assert.Equal(t, "Home", first.BudgetName)
	assert.Equal(t, "$", first.CurrencySymbol)
	assert.True(t, first.Balance.Equal(decimal.RequireFromString("152.3")))
	assert.True(t, first.ClearedBalance.Equal(decimal.NewFromInt(150)))

	assert.True(t, accounts[1].Balance.Equal(decimal.RequireFromString("-0.001")))
	assert.True(t, accounts[1].Closed)
}

func TestFetchBudgetAccounts_HTTPError(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, "tok", 5*time.Second)

	_, err := c.FetchBudgetAccounts(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrAPI)

	var se *syncerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetchAccounts_SkipsFailingBudget(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, "tok", 5*time.Second)

	accounts, err := c.FetchAccounts(context.Background(), []string{"broken", "b1"})
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestFetchAccounts_AllFailingYieldsEmpty(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, "tok", 5*time.Second)

	accounts, err := c.FetchAccounts(context.Background(), []string{"broken"})
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)
}
