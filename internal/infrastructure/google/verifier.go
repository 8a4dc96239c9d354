package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/guestlist-api/internal/domain"
	"google.golang.org/api/idtoken"
)

// Payload holds the verified claims of a Google ID token.
type Payload struct {
	Sub           string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	HostedDomain  string
}

// Verifier validates operator sign-in tokens issued for clientID.
type Verifier struct {
	clientID string
}

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID}
}

// Verify checks signature, audience and expiry. Any failure is reported as
// domain.ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, token string) (*Payload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("missing google token: %w", domain.ErrUnauthorized)
	}
	p, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	return payloadFromClaims(p.Subject, p.Claims), nil
}

func payloadFromClaims(sub string, claims map[string]interface{}) *Payload {
	str := func(k string) string {
		s, _ := claims[k].(string)
		return s
	}
	verified, _ := claims["email_verified"].(bool)
	return &Payload{
		Sub:           sub,
		Email:         str("email"),
		EmailVerified: verified,
		FirstName:     str("given_name"),
		LastName:      str("family_name"),
		HostedDomain:  str("hd"),
	}
}
