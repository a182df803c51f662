package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/preferences"
)

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

type localPreferences interface {
	PutString(key string, value string) error
	GetString(key string) (string, error)
	Clear() error
}

type userTokenStore interface {
	UpdateFCMToken(ctx context.Context, userID string, token string) error
	DeleteFCMToken(ctx context.Context, userID string) error
}

type noticeSink interface {
	Warn(userID string, message string)
}

const defaultRegisterTimeout = 15 * time.Second

type TokenRegistrar struct {
	tokens  tokenSource
	prefs   localPreferences
	users   userTokenStore
	notices noticeSink
	log     zerolog.Logger
	timeout time.Duration
}

func NewTokenRegistrar(
	tokens tokenSource,
	prefs localPreferences,
	users userTokenStore,
	notices noticeSink,
	log zerolog.Logger,
) *TokenRegistrar {
	return &TokenRegistrar{
		tokens:  tokens,
		prefs:   prefs,
		users:   users,
		notices: notices,
		log:     log.With().Str("component", "token_registrar").Logger(),
		timeout: defaultRegisterTimeout,
	}
}

// RegisterToken fetches a push token, stores it locally and then on the user
// record. A failed remote write is reported but the local value stays.
func (r *TokenRegistrar) RegisterToken(ctx context.Context, userID string) (models.PushToken, error) {
	if err := r.requireDeviceUser(userID); err != nil {
		return "", err
	}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("push token fetch failed")
		return "", fmt.Errorf("fetch push token: %w", err)
	}

	if err := r.prefs.PutString(preferences.KeyFCMToken, token); err != nil {
		return "", fmt.Errorf("store push token locally: %w", err)
	}

	if err := r.users.UpdateFCMToken(ctx, userID, token); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("remote push token update failed")
		r.notices.Warn(userID, WarnTokenUpdateFailed)
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrUserNotFound
		}
		return models.PushToken(token), fmt.Errorf("update remote push token: %w", err)
	}

	r.log.Debug().Str("user_id", userID).Msg("push token registered")
	return models.PushToken(token), nil
}

// RegisterTokenAsync runs RegisterToken in the background. It is not tied to
// the caller's cancellation, only to its own timeout.
func (r *TokenRegistrar) RegisterTokenAsync(ctx context.Context, userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		_, _ = r.RegisterToken(ctx, userID)
	}()
}

// SignOut removes the token from the user record and, only if that worked,
// wipes the local preferences.
func (r *TokenRegistrar) SignOut(ctx context.Context, userID string) error {
	if err := r.requireDeviceUser(userID); err != nil {
		return err
	}

	if err := r.users.DeleteFCMToken(ctx, userID); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("sign out failed")
		r.notices.Warn(userID, WarnSignOutFailed)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete remote push token: %w", err)
	}

	if err := r.prefs.Clear(); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	return nil
}

// requireDeviceUser checks that userID is the account this device is signed
// in as. Token writes and the preference wipe are device wide.
func (r *TokenRegistrar) requireDeviceUser(userID string) error {
	if userID == "" {
		return ErrNotSignedIn
	}
	deviceUser, err := r.prefs.GetString(preferences.KeyUserID)
	if err != nil {
		return fmt.Errorf("read signed in user: %w", err)
	}
	if deviceUser == "" {
		return ErrNotSignedIn
	}
	if deviceUser != userID {
		r.log.Warn().Str("user_id", userID).Msg("token request for a user this device is not signed in as")
		return ErrForbidden
	}
	return nil
}
