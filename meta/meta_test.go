package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backtrue/fbaudai/cost"
	"github.com/backtrue/fbaudai/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestManager(t *testing.T, serverURL, seed string, store storage.Store) *TokenManager {
	t.Helper()
	return NewTokenManager(TokenManagerOpts{
		BaseURL:      serverURL,
		Store:        store,
		AppID:        "app123",
		AppSecret:    "secret456",
		InitialToken: seed,
	})
}

func TestInitializeWithSystemToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/debug_token", r.URL.Path)
		assert.Equal(t, "SYSTEMTOKEN", r.URL.Query().Get("input_token"))
		assert.Equal(t, "app123|secret456", r.URL.Query().Get("access_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"is_valid":true,"type":"SYSTEM_USER","expires_at":0}}`)
	}))
	defer server.Close()

	store := newTestStore(t)
	manager := newTestManager(t, server.URL, "SYSTEMTOKEN", store)
	require.NoError(t, manager.Initialize(context.Background()))

	status := manager.Status()
	assert.True(t, status.Present)
	assert.True(t, status.Valid)
	assert.Equal(t, TokenTypeSystem, status.TokenType)

	token, err := manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SYSTEMTOKEN", token)

	// The credential was persisted for the next boot.
	stored, err := store.GetServiceToken("meta")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "SYSTEMTOKEN", stored.Token)
}

func TestInitializeExchangesShortLivedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/debug_token":
			// Expires within a week, forcing an exchange.
			fmt.Fprintf(w, `{"data":{"is_valid":true,"type":"USER","expires_at":%d}}`, time.Now().Add(time.Hour).Unix())
		case "/oauth/access_token":
			assert.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "SHORTTOKEN", r.URL.Query().Get("fb_exchange_token"))
			fmt.Fprint(w, `{"access_token":"LONGTOKEN","token_type":"bearer","expires_in":5183944}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	store := newTestStore(t)
	manager := newTestManager(t, server.URL, "SHORTTOKEN", store)
	require.NoError(t, manager.Initialize(context.Background()))

	token, err := manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "LONGTOKEN", token)

	status := manager.Status()
	assert.Equal(t, TokenTypeLongLived, status.TokenType)
	assert.True(t, status.Valid)
}

func TestInitializeRejectsInvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"is_valid":false}}`)
	}))
	defer server.Close()

	manager := newTestManager(t, server.URL, "BADTOKEN", newTestStore(t))
	err := manager.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestInitializeLoadsPersistedToken(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveServiceToken(&storage.ServiceToken{
		Name:      "meta",
		Token:     "PERSISTED",
		TokenType: TokenTypeLongLived,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}))

	manager := newTestManager(t, "http://unused.invalid", "", store)
	require.NoError(t, manager.Initialize(context.Background()))

	token, err := manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PERSISTED", token)
}

func TestStatusWithoutToken(t *testing.T) {
	store := newTestStore(t)
	manager := newTestManager(t, "http://unused.invalid", "", store)
	require.NoError(t, manager.Initialize(context.Background()))

	status := manager.Status()
	assert.False(t, status.Present)
	assert.False(t, status.Valid)

	_, err := manager.GetValidToken(context.Background())
	assert.Error(t, err)
}

func newValidManager(t *testing.T, store storage.Store) *TokenManager {
	t.Helper()

	manager := newTestManager(t, "http://unused.invalid", "", store)
	require.NoError(t, store.SaveServiceToken(&storage.ServiceToken{
		Name:      "meta",
		Token:     "VALIDTOKEN",
		TokenType: TokenTypeLongLived,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}))
	require.NoError(t, manager.Initialize(context.Background()))
	return manager
}

func TestSearchInterests(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotQuery = map[string]string{
			"type":         r.URL.Query().Get("type"),
			"q":            r.URL.Query().Get("q"),
			"limit":        r.URL.Query().Get("limit"),
			"access_token": r.URL.Query().Get("access_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"id":"6003","name":"Hiking","audience_size_lower_bound":100000,"audience_size_upper_bound":200000,"path":["Interests","Hiking"],"topic":"Fitness"},
			{"id":"6004","name":"Trail running","audience_size_lower_bound":50000,"audience_size_upper_bound":80000}
		]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, newValidManager(t, newTestStore(t)))

	metrics := &cost.Metrics{}
	interests, err := client.SearchInterests(context.Background(), "hiking", 10, metrics)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"type":         "adinterest",
		"q":            "hiking",
		"limit":        "10",
		"access_token": "VALIDTOKEN",
	}, gotQuery)

	require.Len(t, interests, 2)
	assert.Equal(t, "Hiking", interests[0].Name)
	assert.Equal(t, int64(100000), interests[0].AudienceSizeLower)
	assert.Equal(t, int64(1), metrics.MetaQueries)
}

func TestSearchInterestsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"(#17) User request limit reached","type":"OAuthException","code":17}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, newValidManager(t, newTestStore(t)))

	metrics := &cost.Metrics{}
	_, err := client.SearchInterests(context.Background(), "hiking", 10, metrics)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User request limit reached")
	// The query was attempted and is billed.
	assert.Equal(t, int64(1), metrics.MetaQueries)
}

func TestVerifyAndGenerateAudiences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "unknownword" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"bad keyword"}}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"1","name":"Sneakers","audience_size_lower_bound":1000,"audience_size_upper_bound":2000}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, newValidManager(t, newTestStore(t)))

	metrics := &cost.Metrics{}
	recs, err := client.VerifyAndGenerateAudiences(context.Background(), []string{"sneakers", "unknownword"}, metrics)
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, "sneakers", recs[0].Keyword)
	require.Len(t, recs[0].Interests, 1)
	assert.Equal(t, "Sneakers", recs[0].Interests[0].Name)

	// A failed keyword degrades to an empty list, it is not dropped.
	assert.Equal(t, "unknownword", recs[1].Keyword)
	assert.Empty(t, recs[1].Interests)

	assert.Equal(t, int64(2), metrics.MetaQueries)
}

func TestVerifyAndGenerateAudiencesRequiresKeywords(t *testing.T) {
	client := NewClient("http://unused.invalid", newValidManager(t, newTestStore(t)))
	_, err := client.VerifyAndGenerateAudiences(context.Background(), nil, nil)
	assert.Error(t, err)
}
