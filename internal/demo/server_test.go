package demo

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, srv *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+"/deals", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestCreateDeal(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewStore(), nil))
	defer srv.Close()

	deal := `{"dealId":"D-1","fromCurrency":"USD","toCurrency":"EUR","amount":100}`

	status, body := post(t, srv, deal)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, MsgSaved, body)

	status, body = post(t, srv, deal)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, MsgExists, body)
}

func TestCreateDeal_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"blank dealId", `{"dealId":" ","fromCurrency":"USD","toCurrency":"EUR","amount":1}`, "dealId is required"},
		{"missing source currency", `{"dealId":"D","toCurrency":"EUR","amount":1}`, "source currency is required"},
		{"missing target currency", `{"dealId":"D","fromCurrency":"USD","amount":1}`, "target currency is required"},
		{"zero amount", `{"dealId":"D","fromCurrency":"USD","toCurrency":"EUR","amount":0}`, "greater than 0"},
		{"negative amount", `{"dealId":"D","fromCurrency":"USD","toCurrency":"EUR","amount":-5}`, "greater than 0"},
		{"future timestamp", `{"dealId":"D","fromCurrency":"USD","toCurrency":"EUR","amount":1,"timestamp":"2999-01-01T00:00:00Z"}`, "future"},
		{"malformed", `{"dealId":`, "invalid JSON"},
	}

	srv := httptest.NewServer(NewServer(NewStore(), nil))
	defer srv.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, srv, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body, tt.want)
		})
	}
}

func TestGetDeal(t *testing.T) {
	store := NewStore()
	s := NewServer(store, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	srv := httptest.NewServer(s)
	defer srv.Close()

	status, _ := post(t, srv, `{"dealId":"D-7","fromCurrency":"GBP","toCurrency":"JPY","amount":12.5}`)
	require.Equal(t, http.StatusCreated, status)

	resp, err := srv.Client().Get(srv.URL + "/deals/D-7")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"dealId":"D-7","fromCurrency":"GBP","toCurrency":"JPY","amount":12.5,"timestamp":"2026-03-01T12:00:00Z"}`, string(body))

	resp, err = srv.Client().Get(srv.URL + "/deals/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewStore(), nil))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/deals")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStore_ConcurrentSaveSameID(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	saved := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Save(Deal{DealID: "same"}) {
				mu.Lock()
				saved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, store.Len())
}
