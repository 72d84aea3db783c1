package attendance

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DeviceKeySetting is the settings key holding the active device key.
const DeviceKeySetting = "device_api_key"

// Guard authorizes scanning devices against the key stored in settings.
type Guard struct {
	settings SettingsStore
	timeout  time.Duration
	log      zerolog.Logger
}

// NewGuard creates a guard reading the active key from settings.
func NewGuard(settings SettingsStore, timeout time.Duration, log zerolog.Logger) *Guard {
	return &Guard{
		settings: settings,
		timeout:  timeout,
		log:      log.With().Str("component", "access_guard").Logger(),
	}
}

// Authorize returns nil when supplied matches the active key and
// ErrUnauthorized otherwise. An unreadable settings store also yields
// ErrUnauthorized; the cause is only logged.
func (g *Guard) Authorize(ctx context.Context, supplied string) error {
	if supplied == "" {
		return ErrUnauthorized
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	var active Setting
	err := observe("get_setting", func() error {
		var err error
		active, err = g.settings.GetSetting(ctx, DeviceKeySetting)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		g.log.Warn().Msg("device check-in rejected: no device key configured")
		return ErrUnauthorized
	case err != nil:
		g.log.Error().Err(fmt.Errorf("%w: %w", ErrAuthBackendUnavailable, err)).Msg("device key lookup failed")
		return ErrUnauthorized
	case active.Value == "":
		g.log.Warn().Msg("device check-in rejected: device key is empty")
		return ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(supplied), []byte(active.Value)) != 1 {
		g.log.Info().Msg("device check-in rejected: bad credential")
		return ErrUnauthorized
	}
	return nil
}

// GenerateKey creates, stores and returns a new device key. The previous
// key stops working immediately.
func (g *Guard) GenerateKey(ctx context.Context) (Setting, error) {
	key, err := newDeviceKey()
	if err != nil {
		return Setting{}, fmt.Errorf("generate device key: %w", err)
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	var stored Setting
	err = observe("put_setting", func() error {
		var err error
		stored, err = g.settings.PutSetting(ctx, DeviceKeySetting, key)
		return err
	})
	if err != nil {
		return Setting{}, unavailable("store device key", err)
	}
	g.log.Info().Time("updated_at", stored.UpdatedAt).Msg("device key rotated")
	return stored, nil
}

// KeyStatus reports whether a device key is configured and when it was set.
func (g *Guard) KeyStatus(ctx context.Context) (bool, time.Time, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	active, err := g.settings.GetSetting(ctx, DeviceKeySetting)
	if errors.Is(err, ErrNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, unavailable("read device key", err)
	}
	return active.Value != "", active.UpdatedAt, nil
}

// Bootstrap stores key as the active device key unless one already exists.
func (g *Guard) Bootstrap(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	configured, _, err := g.KeyStatus(ctx)
	if err != nil || configured {
		return false, err
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if _, err := g.settings.PutSetting(ctx, DeviceKeySetting, key); err != nil {
		return false, unavailable("store device key", err)
	}
	g.log.Info().Msg("device key bootstrapped from configuration")
	return true, nil
}

// newDeviceKey returns 16 random bytes as 32 hex characters.
func newDeviceKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
