package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrhollen/SalesAgent/internal/models"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrMalformed    = errors.New("invalid Authorization header format")
	ErrUnauthorized = errors.New("unknown or expired access token")
)

const DefaultCacheTTL = time.Minute

// TokenStore is the part of db.Store the authorizer reads.
type TokenStore interface {
	GetAccessTokens(ctx context.Context) ([]models.AccessToken, error)
}

// AccessTokenAuthorizer resolves bearer tokens to user IDs. Tokens are cached
// and reloaded from the store once the cache is older than the TTL.
type AccessTokenAuthorizer struct {
	DB  TokenStore
	TTL time.Duration

	mu           sync.Mutex
	accessTokens []models.AccessToken
	loadedAt     time.Time
	now          func() time.Time
}

func NewAccessTokenAuthorizer(store TokenStore) *AccessTokenAuthorizer {
	return &AccessTokenAuthorizer{
		DB:  store,
		TTL: DefaultCacheTTL,
		now: time.Now,
	}
}

func (a *AccessTokenAuthorizer) tokens(ctx context.Context) ([]models.AccessToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessTokens != nil && a.now().Sub(a.loadedAt) < a.TTL {
		return a.accessTokens, nil
	}

	accessTokens, err := a.DB.GetAccessTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch access tokens: %w", err)
	}
	if accessTokens == nil {
		accessTokens = []models.AccessToken{}
	}

	a.accessTokens = accessTokens
	a.loadedAt = a.now()

	return a.accessTokens, nil
}

// CheckToken returns the user the token belongs to, or ErrUnauthorized.
func (a *AccessTokenAuthorizer) CheckToken(ctx context.Context, accessTokenValue string) (string, error) {
	accessTokens, err := a.tokens(ctx)
	if err != nil {
		return "", err
	}

	now := a.now()
	for _, token := range accessTokens {
		if subtle.ConstantTimeCompare([]byte(token.Token), []byte(accessTokenValue)) == 1 {
			if !token.Expiration.After(now) {
				return "", ErrUnauthorized
			}
			return token.UserID, nil
		}
	}

	return "", ErrUnauthorized
}

// CheckRequest reads the bearer token from r and resolves it.
func (a *AccessTokenAuthorizer) CheckRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || token == "" {
		return "", ErrMalformed
	}

	return a.CheckToken(r.Context(), token)
}

// NewToken returns a fresh random token value for userID.
func NewToken(userID string, validFor time.Duration) models.AccessToken {
	return models.AccessToken{
		UserID:     userID,
		Token:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Expiration: time.Now().Add(validFor),
	}
}

type contextKey struct{}

// WithUserID stores the authenticated user on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user stored by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}
