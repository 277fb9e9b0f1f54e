package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptdeck/promptdeck/internal/models"
)

// APIKeyService issues and verifies per-user API keys. Only SHA-256 hashes
// are stored; the raw key is returned exactly once at issue time.
type APIKeyService struct {
	db         *pgxpool.Pool
	headerName string
}

func NewAPIKeyService(db *pgxpool.Pool, headerName string) *APIKeyService {
	return &APIKeyService{db: db, headerName: headerName}
}

// Issue creates a key for the user and returns the record plus the raw key.
func (s *APIKeyService) Issue(ctx context.Context, userID uuid.UUID, name string) (*models.APIKey, string, error) {
	prefix, hash, raw, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	var ak models.APIKey
	err = s.db.QueryRow(ctx,
		`INSERT INTO api_keys (user_id, name, key_prefix, key_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, name, key_prefix, key_hash, created_at, last_used_at`,
		userID, name, prefix, hash,
	).Scan(&ak.ID, &ak.UserID, &ak.Name, &ak.KeyPrefix, &ak.KeyHash, &ak.CreatedAt, &ak.LastUsedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	return &ak, raw, nil
}

// HashAPIKey hashes a raw key for storage and lookup.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GenerateAPIKey returns (prefix, hash, raw). The raw key is never stored.
func GenerateAPIKey() (string, string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	raw := "pd_" + base64.RawURLEncoding.EncodeToString(buf)
	return raw[:8], HashAPIKey(raw), raw, nil
}

// Authenticate resolves the API key header into a user on the request
// context. Requests without the header pass through untouched so the JWT
// middleware can have a go.
func (s *APIKeyService) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(s.headerName)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		var ak models.APIKey
		err := s.db.QueryRow(r.Context(),
			`SELECT id, user_id, name, key_prefix, key_hash, created_at, last_used_at
			 FROM api_keys WHERE key_hash = $1`, HashAPIKey(key),
		).Scan(&ak.ID, &ak.UserID, &ak.Name, &ak.KeyPrefix, &ak.KeyHash, &ak.CreatedAt, &ak.LastUsedAt)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		_, _ = s.db.Exec(r.Context(), `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), ak.ID)

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), ak.UserID)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
