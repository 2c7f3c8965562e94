package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"goldenbookAPI/internal/types/user"
)

type contextKey string

const PrincipalKey contextKey = "principal"

var errMissingToken = errors.New("authorization header required")

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// FirebaseVerifier checks Firebase ID tokens issued by email or Google sign-in.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UID, nil
}

// ClerkVerifier checks Clerk session JWTs. clerk.SetKey must have been called.
type ClerkVerifier struct{}

func (ClerkVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				log.WithError(err).Debug("Token verification failed")
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			p := user.Principal{UserID: userID, Locale: requestLocale(r)}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth lets every request through. A valid token yields an
// authenticated principal, anything else a guest.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := user.GuestPrincipal(requestLocale(r))

			if token, err := bearerToken(r); err == nil {
				if userID, err := verifier.Verify(r.Context(), token); err == nil {
					p = user.Principal{UserID: userID, Locale: p.Locale}
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func WithPrincipal(ctx context.Context, p user.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal returns the caller, a guest when no auth middleware ran.
func GetPrincipal(ctx context.Context) user.Principal {
	p, ok := ctx.Value(PrincipalKey).(user.Principal)
	if !ok {
		return user.GuestPrincipal("")
	}
	return p
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		// Browsers cannot set headers on websocket upgrades.
		if t := r.URL.Query().Get("token"); t != "" && websocketUpgrade(r) {
			return t, nil
		}
		return "", errMissingToken
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", errors.New("invalid authorization format, use 'Bearer <token>'")
	}
	return token, nil
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// requestLocale picks the base language of the preferred Accept-Language tag.
func requestLocale(r *http.Request) string {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, _ := tags[0].Base()
	return base.String()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
