package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

// refreshLockKey is the distributed lock taken around a refresh.
const refreshLockKey = "credential-refresh"

// Store persists credentials.
type Store interface {
	Latest(ctx context.Context) (*Credential, error)
	Append(ctx context.Context, c Credential) error
}

// Exchanger trades a refresh token for a new token.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*Token, error)
}

// Locker serializes refreshes across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	BootstrapRefreshToken string
	// Skew treats tokens expiring within this window as expired.
	Skew time.Duration
	// Locker is optional. When nil only in-process refreshes are collapsed.
	Locker Locker
}

// Manager hands out a valid bearer token, refreshing it when expired.
// Concurrent callers that observe an expired token share a single refresh.
type Manager struct {
	store     Store
	exchanger Exchanger
	cfg       ManagerConfig
	group     singleflight.Group
	nowFunc   func() time.Time
	logger    *zap.Logger
}

// NewManager returns a Manager.
func NewManager(store Store, exchanger Exchanger, cfg ManagerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		exchanger: exchanger,
		cfg:       cfg,
		nowFunc:   time.Now,
		logger:    logger.Named("credentials"),
	}
}

// GetValidToken returns an access token that is not expired. Any failure is an *AuthError.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	cred, err := m.store.Latest(ctx)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("read credential: %w", err)}
	}
	if cred != nil && !cred.Expired(m.nowFunc(), m.cfg.Skew) {
		return cred.AccessToken, nil
	}

	// The flight ignores caller cancellation; the exchange is bounded by its HTTP timeout.
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", &AuthError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	cred, err := m.store.Latest(ctx)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("read credential: %w", err)}
	}
	if cred != nil && !cred.Expired(m.nowFunc(), m.cfg.Skew) {
		return cred.AccessToken, nil
	}

	if m.cfg.Locker != nil {
		release, err := m.cfg.Locker.Acquire(ctx, refreshLockKey)
		if err != nil {
			return "", &AuthError{Err: fmt.Errorf("acquire refresh lock: %w", err)}
		}
		defer release()

		// another instance may have refreshed while we waited for the lock
		cred, err = m.store.Latest(ctx)
		if err != nil {
			return "", &AuthError{Err: fmt.Errorf("read credential: %w", err)}
		}
		if cred != nil && !cred.Expired(m.nowFunc(), m.cfg.Skew) {
			return cred.AccessToken, nil
		}
	}

	refreshToken := m.cfg.BootstrapRefreshToken
	if cred != nil && cred.RefreshToken != "" {
		refreshToken = cred.RefreshToken
	}
	if refreshToken == "" {
		return "", &AuthError{Err: ErrNoRefreshToken}
	}

	tok, err := m.exchanger.Exchange(ctx, refreshToken)
	if err != nil {
		m.logger.Error("token exchange failed", zap.Error(err))
		authErr := &AuthError{Err: err}
		var ue *upstream.Error
		if errors.As(err, &ue) {
			authErr.StatusCode = ue.StatusCode
			authErr.Body = ue.Body
		}
		return "", authErr
	}

	now := m.nowFunc()
	next := Credential{
		IssuedAt:     now.UnixNano(),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(tok.ExpiresIn) * time.Second).UTC(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}
	if err := m.store.Append(ctx, next); err != nil {
		return "", &AuthError{Err: fmt.Errorf("store credential: %w", err)}
	}

	m.logger.Info("credential refreshed", zap.Time("expires_at", next.ExpiresAt))
	return next.AccessToken, nil
}
