// internal/httpserver/auth.go
//
// Anonymous participant identity.
//
// Every room operation needs a stable per-session participant id before it
// touches the store. There are no accounts: the id is a random UUID minted
// on first contact, wrapped in an HS256 JWT, and pinned to the browser via
// an HttpOnly cookie. Subsequent requests present the cookie (or a bearer
// token) and get the same id back; a bad signature simply mints a fresh
// identity.

package httpserver

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const participantCookieTTL = 180 * 24 * time.Hour

// participantID returns the caller's stable id, minting and setting a new
// signed cookie when none is presented or the token fails verification.
func (s *Server) participantID(w http.ResponseWriter, r *http.Request) string {
	if tok := bearerOrCookie(r); tok != "" {
		if id := verifyParticipantToken(tok); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	tok, err := signParticipantToken(id)
	if err != nil {
		log.Error().Err(err).Msg("sign participant token")
		return id
	}
	setParticipantCookie(w, tok)
	return id
}

// signParticipantToken wraps a participant id in an HS256 JWT.
func signParticipantToken(id string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  id,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(participantCookieTTL).Unix(),
	})
	return t.SignedString([]byte(jwtSecret()))
}

// verifyParticipantToken returns the embedded id, or "" for any invalid token.
func verifyParticipantToken(tok string) string {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret()), nil
	})
	if err != nil || !t.Valid {
		return ""
	}
	id, _ := claims["id"].(string)
	return id
}

// setParticipantCookie writes the identity cookie with the same security
// attributes in production as in development except Secure/SameSite.
func setParticipantCookie(w http.ResponseWriter, token string) {
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  time.Now().Add(participantCookieTTL),
	})
}

// bearerOrCookie extracts a token from the Authorization header or the
// identity cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName()); err == nil {
		return c.Value
	}
	return ""
}

func cookieName() string {
	return getEnv("COOKIE_NAME", "monguess_participant")
}

func jwtSecret() string {
	return getEnv("JWT_SECRET", "dev_secret_change_me")
}
