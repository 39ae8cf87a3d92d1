// Package monitor tracks the authentication health of every user. It
// classifies balance-check failures, probes the opposite environment once
// after a first failure and disables users after repeated failures.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/i18n"
	"bybit-autotrader/pkg/logging"
)

// DisableAfter is the failure count at which a user is disabled.
const DisableAfter = 3

// Bybit retCode for an invalid API key.
const codeInvalidAPIKey = 10003

var authMarkers = []string{"unauthor", "invalid api", "invalid apikey", "api key is invalid"}

// ProfileStore is the persistence the monitor needs.
type ProfileStore interface {
	Lookup(id string) (store.Profile, error)
	Update(id string, fn func(p *store.Profile) error) (store.Profile, error)
}

// Credentials are decoded API credentials.
type Credentials struct {
	APIKey    string
	APISecret string
}

// ClientFactory builds a gateway for one environment.
type ClientFactory func(creds Credentials, testnet bool) common.Gateway

// Revealer decodes stored credentials.
type Revealer interface {
	Reveal(stored string) (string, error)
}

// Outcome is the result kind of one health check.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeHealthy    Outcome = "healthy"
	OutcomeAuthFailed Outcome = "auth_failed"
	OutcomeDisabled   Outcome = "disabled"
	OutcomeError      Outcome = "error"
)

// Result describes one health check.
type Result struct {
	UserID     string
	Outcome    Outcome
	SkipReason string
	Balance    float64
	Failures   int
	Testnet    bool
	Corrected  bool
	Envelope   common.Envelope
	// Gateway is the authenticated client, set when Outcome is healthy.
	Gateway common.Gateway
}

// Skip reasons
const (
	SkipDisabled       = "disabled"
	SkipSubscription   = "subscription inactive"
	SkipNoCredentials  = "missing credentials"
	SkipBadCredentials = "credentials unreadable"
)

// AuthMonitor drives the per-user auth state machine.
type AuthMonitor struct {
	store   ProfileStore
	factory ClientFactory
	codec   Revealer
	metrics *Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewAuthMonitor wires the monitor. codec and metrics may be nil.
func NewAuthMonitor(st ProfileStore, factory ClientFactory, codec Revealer, metrics *Metrics, logger zerolog.Logger) *AuthMonitor {
	return &AuthMonitor{
		store:   st,
		factory: factory,
		codec:   codec,
		metrics: metrics,
		log:     logging.Component(logger, "auth_monitor"),
		now:     time.Now,
	}
}

// IsAuthFailure reports whether env carries an unauthorized or invalid-key
// signal. Transport failures never qualify.
func IsAuthFailure(env common.Envelope) bool {
	if env.Transient {
		return false
	}
	if env.HTTPStatus == 401 {
		return true
	}
	if code, ok := env.Code(); ok && (code == 401 || code == codeInvalidAPIKey) {
		return true
	}
	msg := strings.ToLower(env.Message())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Credentials decodes a profile's credentials.
func (m *AuthMonitor) Credentials(p store.Profile) (Credentials, error) {
	key, secret := strings.TrimSpace(p.APIKey), strings.TrimSpace(p.APISecret)
	if m.codec != nil {
		var err error
		if key, err = m.codec.Reveal(key); err != nil {
			return Credentials{}, fmt.Errorf("api key: %w", err)
		}
		if secret, err = m.codec.Reveal(secret); err != nil {
			return Credentials{}, fmt.Errorf("api secret: %w", err)
		}
	}
	return Credentials{APIKey: key, APISecret: secret}, nil
}

// Check runs one state-machine step for p.
func (m *AuthMonitor) Check(ctx context.Context, p store.Profile) Result {
	res := Result{UserID: p.ID, Failures: p.AuthFailures, Testnet: p.Testnet()}
	log := m.log.With().Str("user", p.ID).Logger()

	if p.Disabled() {
		log.Info().Msg("auth disabled, skip")
		return res.skip(SkipDisabled)
	}
	if !p.SubscriptionActive(m.now()) {
		log.Debug().Str("sub_until", p.SubUntil).Msg("subscription inactive, skip")
		return res.skip(SkipSubscription)
	}
	if !p.HasCredentials() {
		log.Debug().Msg("missing keys, skip")
		return res.skip(SkipNoCredentials)
	}
	creds, err := m.Credentials(p)
	if err != nil {
		log.Warn().Err(err).Msg("cannot decode credentials, skip")
		return res.skip(SkipBadCredentials)
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return res.skip(SkipNoCredentials)
	}

	gw := m.factory(creds, res.Testnet)
	bal := gw.GetBalance(ctx)
	if bal.OK {
		res.Outcome = OutcomeHealthy
		res.Balance = bal.Equity
		res.Gateway = gw
		if p.AuthFailures != 0 {
			if _, err := m.store.Update(p.ID, func(sp *store.Profile) error {
				sp.AuthFailures = 0
				return nil
			}); err != nil {
				log.Error().Err(err).Msg("persist auth reset failed")
			}
		}
		res.Failures = 0
		return res
	}

	res.Envelope = bal.Envelope
	if !IsAuthFailure(bal.Envelope) {
		code, _ := bal.Envelope.Code()
		log.Warn().
			Bool("transient", bal.Envelope.Transient).
			Int("ret_code", code).
			Str("ret_msg", bal.Envelope.Message()).
			Msg("balance check failed")
		res.Outcome = OutcomeError
		return res
	}

	m.metrics.authFailure()
	updated, err := m.store.Update(p.ID, func(sp *store.Profile) error {
		sp.AuthFailures++
		if sp.AuthFailures >= DisableAfter {
			sp.Settings[store.SettingDisabledAuth] = true
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("persist auth failure failed")
		updated.AuthFailures = p.AuthFailures + 1
	}
	res.Failures = updated.AuthFailures
	res.Outcome = OutcomeAuthFailed
	log.Warn().Msgf(i18n.M().AuthFailure, p.ID, res.Failures)

	switch {
	case res.Failures >= DisableAfter:
		res.Outcome = OutcomeDisabled
		m.metrics.disabled()
		log.Warn().Msgf(i18n.M().UserDisabled, p.ID)
	case res.Failures == 1:
		alt := !res.Testnet
		if m.probe(ctx, creds, alt, log) {
			if _, err := m.store.Update(p.ID, func(sp *store.Profile) error {
				sp.Settings[store.SettingTestnet] = alt
				return nil
			}); err != nil {
				log.Error().Err(err).Msg("persist environment correction failed")
			} else {
				res.Testnet = alt
				res.Corrected = true
				m.metrics.envCorrected()
				log.Warn().Msgf(i18n.M().EnvCorrected, p.ID, alt)
			}
		}
	}
	return res
}

// probe checks the opposite environment once. Any panic counts as a failed
// probe.
func (m *AuthMonitor) probe(ctx context.Context, creds Credentials, testnet bool, log zerolog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("alternate environment check failed")
			ok = false
		}
	}()
	log.Info().Bool("alt_testnet", testnet).Msg("trying alternate environment")
	bal := m.factory(creds, testnet).GetBalance(ctx)
	return bal.OK && bal.Equity >= 0
}

// Reset clears DISABLED_AUTH and the failure counter.
func (m *AuthMonitor) Reset(id string) (store.Profile, error) {
	p, err := m.store.Update(id, func(sp *store.Profile) error {
		sp.AuthFailures = 0
		sp.Settings[store.SettingDisabledAuth] = false
		return nil
	})
	if err == nil {
		m.log.Info().Msgf(i18n.M().AuthReset, id)
	}
	return p, err
}

func (r Result) skip(reason string) Result {
	r.Outcome = OutcomeSkipped
	r.SkipReason = reason
	return r
}
