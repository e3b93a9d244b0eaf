package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	key, err := DeriveKey("test-passphrase")
	require.NoError(t, err)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetUser("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user := &User{ID: "u1", Email: "a@example.com", Plan: "free"}
	require.NoError(t, store.UpsertUser(user))

	// Upsert refreshes mutable fields.
	user.Plan = "pro"
	require.NoError(t, store.UpsertUser(user))

	got, err := store.GetUser("u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestAnalysisOwnership(t *testing.T) {
	store := newTestStore(t)

	analysis := &Analysis{
		ID:          "an1",
		UserID:      "u1",
		ProductName: "Trail Sneaker",
		PriceRange:  "1000-2000",
		SalesRegion: "TW",
		Status:      AnalysisStatusCompleted,
		Result:      json.RawMessage(`{"clusters":[]}`),
	}
	require.NoError(t, store.SaveAnalysis(analysis))

	got, err := store.GetAnalysis("an1", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Trail Sneaker", got.ProductName)
	assert.Equal(t, "1000-2000", got.PriceRange)
	assert.Equal(t, "TW", got.SalesRegion)
	assert.JSONEq(t, `{"clusters":[]}`, string(got.Result))

	// Another user's lookup reads as absent, not forbidden.
	other, err := store.GetAnalysis("an1", "u2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestListAnalysesNewestFirst(t *testing.T) {
	store := newTestStore(t)

	older := &Analysis{ID: "an1", UserID: "u1", ProductName: "First", Status: AnalysisStatusCompleted, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Analysis{ID: "an2", UserID: "u1", ProductName: "Second", Status: AnalysisStatusCompleted, CreatedAt: time.Now()}
	require.NoError(t, store.SaveAnalysis(older))
	require.NoError(t, store.SaveAnalysis(newer))
	require.NoError(t, store.SaveAnalysis(&Analysis{ID: "an3", UserID: "u2", ProductName: "Foreign", Status: AnalysisStatusCompleted}))

	analyses, err := store.ListAnalyses("u1", 10)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "an2", analyses[0].ID)
	assert.Equal(t, "an1", analyses[1].ID)
	// The listing omits the heavy result payload.
	assert.Nil(t, analyses[0].Result)
}

func TestAnalysisImagesAndCost(t *testing.T) {
	store := newTestStore(t)

	images := []ImageMeta{
		{Position: 0, Filename: "a.jpg", ContentType: "image/jpeg", SizeBytes: 1024},
		{Position: 1, Filename: "b.png", ContentType: "image/png", SizeBytes: 2048},
	}
	require.NoError(t, store.AddAnalysisImages("an1", images))

	gotImages, err := store.GetAnalysisImages("an1")
	require.NoError(t, err)
	assert.Equal(t, images, gotImages)

	cost := AnalysisCost{
		InputTokens:      10000,
		OutputTokens:     2750,
		VisionCalls:      12,
		TotalCostUSD:     0.1123,
		TotalCostJPY:     16.84,
		EstimatedCredits: 1.68,
		BufferedCredits:  2.19,
	}
	require.NoError(t, store.SaveAnalysisCost("an1", cost))

	gotCost, err := store.GetAnalysisCost("an1")
	require.NoError(t, err)
	require.NotNil(t, gotCost)
	assert.Equal(t, cost, *gotCost)

	none, err := store.GetAnalysisCost("an2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRecommendations(t *testing.T) {
	store := newTestStore(t)

	id, err := store.SaveRecommendation("an1", json.RawMessage(`{"audiences":["hikers"]}`))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = store.SaveRecommendation("an1", json.RawMessage(`{"audiences":["commuters"]}`))
	require.NoError(t, err)

	recs, err := store.ListRecommendations("an1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.JSONEq(t, `{"audiences":["hikers"]}`, string(recs[0].Payload))
}

func TestUsageStatsAccumulate(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.GetUsageStats("u1", "2026-08")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Zero(t, stats.AnalysisCount)

	require.NoError(t, store.RecordUsage("u1", "2026-08", 3, 1.68))
	require.NoError(t, store.RecordUsage("u1", "2026-08", 2, 0.5))

	stats, err = store.GetUsageStats("u1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.AnalysisCount)
	assert.Equal(t, int64(5), stats.ImageCount)
	assert.InDelta(t, 2.18, stats.CreditsUsed, 1e-9)
}

func TestAudienceUsageAccumulates(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RecordUsage("u1", "2026-08", 3, 1.0))
	require.NoError(t, store.RecordAudienceUsage("u1", "2026-08"))
	require.NoError(t, store.RecordAudienceUsage("u1", "2026-08"))

	stats, err := store.GetUsageStats("u1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AnalysisCount)
	assert.Equal(t, int64(2), stats.AudienceCount)

	// Audience usage on a fresh month does not invent analysis counts.
	require.NoError(t, store.RecordAudienceUsage("u1", "2026-09"))
	stats, err = store.GetUsageStats("u1", "2026-09")
	require.NoError(t, err)
	assert.Zero(t, stats.AnalysisCount)
	assert.Equal(t, int64(1), stats.AudienceCount)
}

func TestUserTotals(t *testing.T) {
	store := newTestStore(t)

	empty, err := store.GetUserTotals("u1")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalAnalyses)
	assert.Zero(t, empty.TotalAudiences)

	require.NoError(t, store.SaveAnalysis(&Analysis{ID: "an1", UserID: "u1", ProductName: "A", Status: AnalysisStatusCompleted}))
	require.NoError(t, store.SaveAnalysis(&Analysis{ID: "an2", UserID: "u1", ProductName: "B", Status: AnalysisStatusCompleted}))
	require.NoError(t, store.SaveAnalysis(&Analysis{ID: "an3", UserID: "u2", ProductName: "C", Status: AnalysisStatusCompleted}))

	_, err = store.SaveRecommendation("an1", json.RawMessage(`{"recommendations":[]}`))
	require.NoError(t, err)
	_, err = store.SaveRecommendation("an3", json.RawMessage(`{"recommendations":[]}`))
	require.NoError(t, err)

	totals, err := store.GetUserTotals("u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.TotalAnalyses)
	// Only recommendations hanging off the user's own analyses count.
	assert.Equal(t, int64(1), totals.TotalAudiences)
}

func TestServiceTokenEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)

	token := &ServiceToken{
		Name:      "meta",
		Token:     "EAAlonglivedtoken",
		TokenType: "long_lived",
		ExpiresAt: time.Now().Add(60 * 24 * time.Hour),
	}
	require.NoError(t, store.SaveServiceToken(token))

	got, err := store.GetServiceToken("meta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "EAAlonglivedtoken", got.Token)
	assert.Equal(t, "long_lived", got.TokenType)

	// The raw row never contains the plaintext credential.
	var stored string
	require.NoError(t, store.db.QueryRow("SELECT encrypted_token FROM service_tokens WHERE name = 'meta'").Scan(&stored))
	assert.NotContains(t, stored, "EAAlonglivedtoken")

	missing, err := store.GetServiceToken("other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := DeriveKey("secret")
	require.NoError(t, err)

	ciphertext, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), plaintext)

	otherKey, err := DeriveKey("wrong")
	require.NoError(t, err)
	_, err = Decrypt(ciphertext, otherKey)
	assert.Error(t, err)
}
