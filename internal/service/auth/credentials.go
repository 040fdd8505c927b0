package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenCookie is the cookie the portal stores the session token in.
const TokenCookie = "token"

// Credentials are the citizen session credentials attached to backend calls.
type Credentials struct {
	Token   string
	Cookies []*http.Cookie
}

// Authenticated reports whether the credentials can be sent to the backend.
// Tokens that parse as JWTs must not be expired; opaque tokens are trusted
// and left for the backend to reject.
func (c Credentials) Authenticated(now time.Time) bool {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return strings.Count(token, ".") != 2
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return now.Before(claims.ExpiresAt.Time)
}

// Apply attaches the credentials to an outgoing request.
func (c Credentials) Apply(req *http.Request) {
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range c.Cookies {
		req.AddCookie(cookie)
	}
}

// FromRequest extracts credentials from an incoming browser request. The
// bearer header wins over the token cookie. Only cookies named in forward are
// kept for the backend.
func FromRequest(r *http.Request, forward []string) Credentials {
	var creds Credentials

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			creds.Token = strings.TrimSpace(parts[1])
		}
	}

	allowed := make(map[string]struct{}, len(forward))
	for _, name := range forward {
		allowed[strings.TrimSpace(name)] = struct{}{}
	}

	for _, cookie := range r.Cookies() {
		if cookie.Name == TokenCookie && creds.Token == "" {
			creds.Token = cookie.Value
		}
		if _, ok := allowed[cookie.Name]; ok {
			creds.Cookies = append(creds.Cookies, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}
	return creds
}

type credentialsKey struct{}

// WithCredentials stores credentials on the context.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// FromContext retrieves credentials stored by WithCredentials.
func FromContext(ctx context.Context) Credentials {
	creds, _ := ctx.Value(credentialsKey{}).(Credentials)
	return creds
}
