package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"gwi.com/chatbot-backend/internal/errs"
)

// Claims are the Cognito token claims the service reads.
type Claims struct {
	jwt.RegisteredClaims
	TokenUse   string `json:"token_use"`
	Username   string `json:"username,omitempty"`
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// Verifier checks RS256 bearer tokens against a key set and issuer.
type Verifier struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

func NewVerifier(issuer string, keyFunc jwt.Keyfunc) *Verifier {
	return &Verifier{
		keyFunc: keyFunc,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// NewCognitoVerifier fetches the user pool's JWKS and keeps it refreshed in
// the background until ctx is done.
func NewCognitoVerifier(ctx context.Context, jwksURL, issuer string) (*Verifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return NewVerifier(issuer, k.Keyfunc), nil
}

// Verify parses and validates tokenString. Every failure is ErrUnauthorized.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnauthorized, err, "invalid token")
	}
	if !token.Valid {
		return nil, errs.Newf(errs.ErrUnauthorized, "invalid token")
	}

	switch {
	case claims.Subject == "":
		return nil, errs.Newf(errs.ErrUnauthorized, "token is missing sub")
	case claims.Issuer == "":
		return nil, errs.Newf(errs.ErrUnauthorized, "token is missing iss")
	case claims.TokenUse != "access" && claims.TokenUse != "id":
		return nil, errs.Newf(errs.ErrUnauthorized, "token has invalid token_use")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errs.Newf(errs.ErrUnauthorized, "authorization header is required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errs.Newf(errs.ErrUnauthorized, "authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}
