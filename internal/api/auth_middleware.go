package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

type contextKey string

const (
	clerkUserIDContextKey contextKey = "clerkUserID"
	clerkEmailContextKey  contextKey = "clerkEmail"
)

// Header names honoured when the header fallback is enabled.
const (
	headerClerkUserID = "X-Clerk-User-Id"
	headerUserEmail   = "X-User-Email"
)

// AuthConfig controls how incoming requests are authenticated.
type AuthConfig struct {
	JWKSURL             string
	ExpectedAudience    string
	ExpectedIssuer      string
	AllowHeaderFallback bool
}

// jwksVerifier validates Clerk session tokens against the instance's JWKS.
// Keys are cached per kid and refetched when an unknown kid shows up.
type jwksVerifier struct {
	jwksURL    string
	httpClient *http.Client
	keys       *cache.Cache

	refreshMu sync.Mutex
}

func newJWKSVerifier(jwksURL string) *jwksVerifier {
	return &jwksVerifier{
		jwksURL:    strings.TrimSpace(jwksURL),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		keys:       cache.New(10*time.Minute, 20*time.Minute),
	}
}

// ClerkAuthMiddleware validates Clerk JWTs and injects the Clerk user id and
// email into the request context. Local environments can enable the header
// fallback to pass X-Clerk-User-Id without a token.
func ClerkAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	verifier := newJWKSVerifier(cfg.JWKSURL)
	audience := strings.TrimSpace(cfg.ExpectedAudience)
	issuer := strings.TrimSpace(cfg.ExpectedIssuer)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader != "" {
				tokenString, ok := bearerToken(authHeader)
				if !ok {
					respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
					return
				}

				userID, tokenEmail, err := verifier.validateToken(r.Context(), tokenString, audience, issuer)
				if err != nil {
					respondWithError(w, http.StatusUnauthorized, "invalid token")
					return
				}

				// With a token the email only comes from its claims. Clerk's default
				// session template has none; add an "email" claim to the template.
				headerEmail := strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserEmail)))
				if headerEmail != "" && headerEmail != tokenEmail {
					respondWithError(w, http.StatusUnauthorized, "invalid user email context")
					return
				}

				next.ServeHTTP(w, r.WithContext(withClerkIdentity(r.Context(), userID, tokenEmail)))
				return
			}

			if cfg.AllowHeaderFallback {
				if userID := strings.TrimSpace(r.Header.Get(headerClerkUserID)); userID != "" {
					email := strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserEmail)))
					next.ServeHTTP(w, r.WithContext(withClerkIdentity(r.Context(), userID, email)))
					return
				}
			}

			respondWithError(w, http.StatusUnauthorized, "authorization required")
		})
	}
}

func withClerkIdentity(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, clerkUserIDContextKey, userID)
	if email != "" {
		ctx = context.WithValue(ctx, clerkEmailContextKey, email)
	}
	return ctx
}

// GetClerkUserID returns the authenticated Clerk user ID from request context.
func GetClerkUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(clerkUserIDContextKey).(string)
	return userID, ok && userID != ""
}

// GetClerkUserEmail returns the authenticated email from request context when available.
func GetClerkUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(clerkEmailContextKey).(string)
	return email, ok && email != ""
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (v *jwksVerifier) validateToken(ctx context.Context, tokenString, expectedAudience, expectedIssuer string) (string, string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if expectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(expectedIssuer))
	}
	if expectedAudience != "" {
		opts = append(opts, jwt.WithAudience(expectedAudience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return "", "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", "", errors.New("token validation failed")
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", "", errors.New("subject claim missing")
	}
	return sub, extractEmailClaim(claims), nil
}

func (v *jwksVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.keys.Get(kid); ok {
		return key.(*rsa.PublicKey), nil
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	// Another request may have refreshed while we waited.
	if key, ok := v.keys.Get(kid); ok {
		return key.(*rsa.PublicKey), nil
	}
	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}
	if key, ok := v.keys.Get(kid); ok {
		return key.(*rsa.PublicKey), nil
	}
	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *jwksVerifier) refreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("jwks url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	loaded := 0
	for _, key := range payload.Keys {
		if key.Kid == "" || key.Kty != "RSA" || key.N == "" || key.E == "" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		v.keys.SetDefault(key.Kid, pub)
		loaded++
	}
	if loaded == 0 {
		return errors.New("no usable RSA keys in JWKS")
	}
	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}

func extractEmailClaim(claims jwt.MapClaims) string {
	candidates := []string{"email", "email_address", "primary_email_address"}
	for _, key := range candidates {
		if value, ok := claims[key].(string); ok {
			if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
				return trimmed
			}
		}
	}

	if nested, ok := claims["https://clerk.dev/claims"].(map[string]any); ok {
		for _, key := range candidates {
			if value, ok := nested[key].(string); ok {
				if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}
