package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// User is an account as mirrored from the SSO service. Plan gates the
// optional analysis stages.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// Analysis is one stored pipeline run. Result holds the serialized pipeline
// output verbatim; the store does not interpret it.
type Analysis struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	ProductName string          `json:"productName"`
	PriceRange  string          `json:"priceRange,omitempty"`
	SalesRegion string          `json:"salesRegion,omitempty"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Analysis status values.
const (
	AnalysisStatusCompleted = "completed"
	AnalysisStatusFailed    = "failed"
)

// ImageMeta describes one uploaded image of an analysis. Position matches
// the image's index in the analyzed batch.
type ImageMeta struct {
	Position    int    `json:"position"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// AnalysisCost is the billing snapshot of one run.
type AnalysisCost struct {
	InputTokens      int64   `json:"inputTokens"`
	OutputTokens     int64   `json:"outputTokens"`
	VisionCalls      int64   `json:"visionCalls"`
	MetaQueries      int64   `json:"metaQueries"`
	TotalCostUSD     float64 `json:"totalCostUsd"`
	TotalCostJPY     float64 `json:"totalCostJpy"`
	EstimatedCredits float64 `json:"estimatedCredits"`
	BufferedCredits  float64 `json:"bufferedCredits"`
}

// Recommendation is one saved audience recommendation set for an analysis.
type Recommendation struct {
	ID         int64           `json:"id"`
	AnalysisID string          `json:"analysisId"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// UsageStats aggregates a user's consumption for one month (YYYY-MM).
type UsageStats struct {
	UserID        string  `json:"userId"`
	Month         string  `json:"month"`
	AnalysisCount int64   `json:"analysisCount"`
	ImageCount    int64   `json:"imageCount"`
	AudienceCount int64   `json:"audienceCount"`
	CreditsUsed   float64 `json:"creditsUsed"`
}

// UserTotals is a user's all-time consumption across every month.
type UserTotals struct {
	TotalAnalyses  int64 `json:"totalAnalyses"`
	TotalAudiences int64 `json:"totalAudiences"`
}

// ServiceToken is a long-lived third-party credential kept encrypted at
// rest.
type ServiceToken struct {
	Name      string    `json:"name"`
	Token     string    `json:"-"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store defines the persistence surface of the service.
type Store interface {
	UpsertUser(user *User) error
	GetUser(id string) (*User, error)

	SaveAnalysis(analysis *Analysis) error
	GetAnalysis(id, userID string) (*Analysis, error)
	ListAnalyses(userID string, limit int) ([]Analysis, error)
	AddAnalysisImages(analysisID string, images []ImageMeta) error
	GetAnalysisImages(analysisID string) ([]ImageMeta, error)
	SaveAnalysisCost(analysisID string, cost AnalysisCost) error
	GetAnalysisCost(analysisID string) (*AnalysisCost, error)

	SaveRecommendation(analysisID string, payload json.RawMessage) (int64, error)
	ListRecommendations(analysisID string) ([]Recommendation, error)

	RecordUsage(userID, month string, images int64, credits float64) error
	RecordAudienceUsage(userID, month string) error
	GetUsageStats(userID, month string) (*UsageStats, error)
	GetUserTotals(userID string) (*UserTotals, error)

	SaveServiceToken(token *ServiceToken) error
	GetServiceToken(name string) (*ServiceToken, error)

	Close() error
}

// SQLiteStore implements Store using SQLite with encrypted service tokens.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath. The
// encryptionKey protects service tokens at rest.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT 'free',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			price_range TEXT NOT NULL DEFAULT '',
			sales_region TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			result TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses (user_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS analysis_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS analysis_costs (
			analysis_id TEXT PRIMARY KEY,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			vision_calls INTEGER NOT NULL,
			meta_queries INTEGER NOT NULL,
			total_cost_usd REAL NOT NULL,
			total_cost_jpy REAL NOT NULL,
			estimated_credits REAL NOT NULL,
			buffered_credits REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audience_recommendations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS usage_stats (
			user_id TEXT NOT NULL,
			month TEXT NOT NULL,
			analysis_count INTEGER NOT NULL DEFAULT 0,
			image_count INTEGER NOT NULL DEFAULT 0,
			audience_count INTEGER NOT NULL DEFAULT 0,
			credits_used REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, month)
		);`,
		`CREATE TABLE IF NOT EXISTS service_tokens (
			name TEXT PRIMARY KEY,
			encrypted_token TEXT NOT NULL,
			token_type TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// UpsertUser stores or refreshes the SSO-mirrored account record.
func (s *SQLiteStore) UpsertUser(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO users (id, email, plan, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			plan = excluded.plan
	`, user.ID, user.Email, user.Plan, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser returns nil, nil if the user doesn't exist.
func (s *SQLiteStore) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var user User
	err := s.db.QueryRow(
		"SELECT id, email, plan, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Email, &user.Plan, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// SaveAnalysis stores or updates a pipeline run.
func (s *SQLiteStore) SaveAnalysis(analysis *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}

	var result any
	if analysis.Result != nil {
		result = string(analysis.Result)
	}

	_, err := s.db.Exec(`
		INSERT INTO analyses (id, user_id, product_name, price_range, sales_region, status, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_name = excluded.product_name,
			price_range = excluded.price_range,
			sales_region = excluded.sales_region,
			status = excluded.status,
			result = excluded.result
	`, analysis.ID, analysis.UserID, analysis.ProductName, analysis.PriceRange, analysis.SalesRegion, analysis.Status, result, analysis.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis enforces ownership: a row belonging to another user reads as
// absent. Returns nil, nil when not found.
func (s *SQLiteStore) GetAnalysis(id, userID string) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var analysis Analysis
	var result sql.NullString
	err := s.db.QueryRow(
		"SELECT id, user_id, product_name, price_range, sales_region, status, result, created_at FROM analyses WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&analysis.ID, &analysis.UserID, &analysis.ProductName, &analysis.PriceRange, &analysis.SalesRegion, &analysis.Status, &result, &analysis.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}
	if result.Valid {
		analysis.Result = json.RawMessage(result.String)
	}
	return &analysis, nil
}

// ListAnalyses returns the user's runs newest first, without the result
// payload.
func (s *SQLiteStore) ListAnalyses(userID string, limit int) ([]Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		"SELECT id, user_id, product_name, price_range, sales_region, status, created_at FROM analyses WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var analysis Analysis
		if err := rows.Scan(&analysis.ID, &analysis.UserID, &analysis.ProductName, &analysis.PriceRange, &analysis.SalesRegion, &analysis.Status, &analysis.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

// AddAnalysisImages records the uploaded image metadata for a run.
func (s *SQLiteStore) AddAnalysisImages(analysisID string, images []ImageMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, image := range images {
		_, err := s.db.Exec(`
			INSERT INTO analysis_images (analysis_id, position, filename, content_type, size_bytes)
			VALUES (?, ?, ?, ?, ?)
		`, analysisID, image.Position, image.Filename, image.ContentType, image.SizeBytes)
		if err != nil {
			return fmt.Errorf("failed to save analysis image: %w", err)
		}
	}
	return nil
}

// GetAnalysisImages returns the run's images in batch order.
func (s *SQLiteStore) GetAnalysisImages(analysisID string) ([]ImageMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT position, filename, content_type, size_bytes FROM analysis_images WHERE analysis_id = ? ORDER BY position",
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis images: %w", err)
	}
	defer rows.Close()

	var images []ImageMeta
	for rows.Next() {
		var image ImageMeta
		if err := rows.Scan(&image.Position, &image.Filename, &image.ContentType, &image.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// SaveAnalysisCost stores the billing snapshot of a run.
func (s *SQLiteStore) SaveAnalysisCost(analysisID string, cost AnalysisCost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO analysis_costs (analysis_id, input_tokens, output_tokens, vision_calls, meta_queries,
			total_cost_usd, total_cost_jpy, estimated_credits, buffered_credits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			vision_calls = excluded.vision_calls,
			meta_queries = excluded.meta_queries,
			total_cost_usd = excluded.total_cost_usd,
			total_cost_jpy = excluded.total_cost_jpy,
			estimated_credits = excluded.estimated_credits,
			buffered_credits = excluded.buffered_credits
	`, analysisID, cost.InputTokens, cost.OutputTokens, cost.VisionCalls, cost.MetaQueries,
		cost.TotalCostUSD, cost.TotalCostJPY, cost.EstimatedCredits, cost.BufferedCredits)
	if err != nil {
		return fmt.Errorf("failed to save analysis cost: %w", err)
	}
	return nil
}

// GetAnalysisCost returns nil, nil when no snapshot exists.
func (s *SQLiteStore) GetAnalysisCost(analysisID string) (*AnalysisCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cost AnalysisCost
	err := s.db.QueryRow(`
		SELECT input_tokens, output_tokens, vision_calls, meta_queries,
			total_cost_usd, total_cost_jpy, estimated_credits, buffered_credits
		FROM analysis_costs WHERE analysis_id = ?`, analysisID,
	).Scan(&cost.InputTokens, &cost.OutputTokens, &cost.VisionCalls, &cost.MetaQueries,
		&cost.TotalCostUSD, &cost.TotalCostJPY, &cost.EstimatedCredits, &cost.BufferedCredits)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cost: %w", err)
	}
	return &cost, nil
}

// SaveRecommendation appends an audience recommendation set to a run.
func (s *SQLiteStore) SaveRecommendation(analysisID string, payload json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		INSERT INTO audience_recommendations (analysis_id, payload, created_at)
		VALUES (?, ?, ?)
	`, analysisID, string(payload), time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to save recommendation: %w", err)
	}
	return result.LastInsertId()
}

// ListRecommendations returns a run's recommendation sets oldest first.
func (s *SQLiteStore) ListRecommendations(analysisID string) ([]Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, analysis_id, payload, created_at FROM audience_recommendations WHERE analysis_id = ? ORDER BY id",
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recommendations []Recommendation
	for rows.Next() {
		var rec Recommendation
		var payload string
		if err := rows.Scan(&rec.ID, &rec.AnalysisID, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		recommendations = append(recommendations, rec)
	}
	return recommendations, rows.Err()
}

// RecordUsage adds one analysis run to the user's monthly counters.
func (s *SQLiteStore) RecordUsage(userID, month string, images int64, credits float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO usage_stats (user_id, month, analysis_count, image_count, credits_used)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET
			analysis_count = analysis_count + 1,
			image_count = image_count + excluded.image_count,
			credits_used = credits_used + excluded.credits_used
	`, userID, month, images, credits)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// RecordAudienceUsage adds one audience generation to the user's monthly
// counters.
func (s *SQLiteStore) RecordAudienceUsage(userID, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO usage_stats (user_id, month, audience_count)
		VALUES (?, ?, 1)
		ON CONFLICT(user_id, month) DO UPDATE SET
			audience_count = audience_count + 1
	`, userID, month)
	if err != nil {
		return fmt.Errorf("failed to record audience usage: %w", err)
	}
	return nil
}

// GetUsageStats returns zeroed stats (not nil) for months without activity.
func (s *SQLiteStore) GetUsageStats(userID, month string) (*UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := UsageStats{UserID: userID, Month: month}
	err := s.db.QueryRow(
		"SELECT analysis_count, image_count, audience_count, credits_used FROM usage_stats WHERE user_id = ? AND month = ?",
		userID, month,
	).Scan(&stats.AnalysisCount, &stats.ImageCount, &stats.AudienceCount, &stats.CreditsUsed)

	if err == sql.ErrNoRows {
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}
	return &stats, nil
}

// GetUserTotals counts the user's lifetime analyses and audience sets from
// the source tables, so totals stay right even if usage rows are pruned.
func (s *SQLiteStore) GetUserTotals(userID string) (*UserTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals UserTotals
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM analyses WHERE user_id = ?", userID,
	).Scan(&totals.TotalAnalyses)
	if err != nil {
		return nil, fmt.Errorf("failed to count analyses: %w", err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM audience_recommendations r
		JOIN analyses a ON a.id = r.analysis_id
		WHERE a.user_id = ?`, userID,
	).Scan(&totals.TotalAudiences)
	if err != nil {
		return nil, fmt.Errorf("failed to count audience recommendations: %w", err)
	}

	return &totals, nil
}

// SaveServiceToken encrypts the credential before it touches disk.
func (s *SQLiteStore) SaveServiceToken(token *ServiceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := Encrypt([]byte(token.Token), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	token.UpdatedAt = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO service_tokens (name, encrypted_token, token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, token.Name, encrypted, token.TokenType, token.ExpiresAt, token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save service token: %w", err)
	}
	return nil
}

// GetServiceToken returns nil, nil if no credential is stored under name.
func (s *SQLiteStore) GetServiceToken(name string) (*ServiceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token := ServiceToken{Name: name}
	var encrypted string
	err := s.db.QueryRow(
		"SELECT encrypted_token, token_type, expires_at, updated_at FROM service_tokens WHERE name = ?",
		name,
	).Scan(&encrypted, &token.TokenType, &token.ExpiresAt, &token.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service token: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	token.Token = string(plaintext)

	return &token, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
