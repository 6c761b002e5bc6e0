package credentials

import (
	"errors"
	"fmt"
	"time"
)

// DefaultProvider is the partition key used for the marketplace credential rows.
const DefaultProvider = "marketplace"

// ErrNoRefreshToken is wrapped in an AuthError when neither a stored credential nor
// a bootstrap refresh token is available.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Credential is one issued OAuth credential. Rows are append-only; the latest IssuedAt wins.
type Credential struct {
	Provider     string    `dynamodbav:"provider"`  // PK
	IssuedAt     int64     `dynamodbav:"issued_at"` // SK, unix nanos
	AccessToken  string    `dynamodbav:"access_token"`
	RefreshToken string    `dynamodbav:"refresh_token"`
	ExpiresAt    time.Time `dynamodbav:"expires_at"`
}

// Expired reports whether the credential must be refreshed at now, treating
// tokens within skew of expiry as already expired.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	return !now.Before(c.ExpiresAt.Add(-skew))
}

// AuthError means a valid token could not be obtained. StatusCode and Body carry the
// OAuth endpoint response when there was one.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("credential refresh failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("credential refresh failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
