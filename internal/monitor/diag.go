package monitor

import (
	"context"
	"fmt"
	"strings"

	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/i18n"
	"bybit-autotrader/pkg/logging"
)

type clockSyncer interface {
	SyncTime(ctx context.Context) error
	ClockOffset() int64
}

// EnvCheck is the balance outcome against one environment.
type EnvCheck struct {
	Testnet  bool            `json:"testnet"`
	OK       bool            `json:"ok"`
	Balance  float64         `json:"balance,omitempty"`
	Envelope common.Envelope `json:"envelope,omitempty"`
	// ClockOffsetMs is the exchange clock minus the local clock.
	ClockOffsetMs int64  `json:"clock_offset_ms"`
	ClockError    string `json:"clock_error,omitempty"`
}

// Report is a credentials diagnosis for one user.
type Report struct {
	UserID       string     `json:"user_id"`
	TestnetFlag  bool       `json:"testnet_flag"`
	MaskedKey    string     `json:"masked_key"`
	SecretLen    int        `json:"secret_len"`
	AuthFailures int        `json:"auth_failures"`
	Disabled     bool       `json:"disabled"`
	Checks       []EnvCheck `json:"checks"`
}

// Diagnose checks a user's credentials against both environments without
// changing any persisted state.
func (m *AuthMonitor) Diagnose(ctx context.Context, id string) (Report, error) {
	p, err := m.store.Lookup(id)
	if err != nil {
		return Report{}, err
	}
	creds, err := m.Credentials(p)
	if err != nil {
		return Report{}, fmt.Errorf("decode credentials: %w", err)
	}
	rep := Report{
		UserID:       id,
		TestnetFlag:  p.Testnet(),
		MaskedKey:    logging.MaskKey(creds.APIKey),
		SecretLen:    len(creds.APISecret),
		AuthFailures: p.AuthFailures,
		Disabled:     p.Disabled(),
	}
	for _, testnet := range []bool{p.Testnet(), !p.Testnet()} {
		rep.Checks = append(rep.Checks, m.checkEnv(ctx, creds, testnet))
	}
	return rep, nil
}

func (m *AuthMonitor) checkEnv(ctx context.Context, creds Credentials, testnet bool) (chk EnvCheck) {
	chk.Testnet = testnet
	defer func() {
		if r := recover(); r != nil {
			chk.OK = false
			chk.Envelope = common.TransportEnvelope(fmt.Errorf("panic: %v", r))
		}
	}()
	gw := m.factory(creds, testnet)
	bal := gw.GetBalance(ctx)
	chk.OK = bal.OK
	chk.Balance = bal.Equity
	if !bal.OK {
		chk.Envelope = bal.Envelope
	}
	if cs, ok := gw.(clockSyncer); ok {
		if err := cs.SyncTime(ctx); err != nil {
			chk.ClockError = err.Error()
		} else {
			chk.ClockOffsetMs = cs.ClockOffset()
		}
	}
	return chk
}

// Lines renders the report in the operator language.
func (r Report) Lines() []string {
	msg := i18n.M()
	lines := []string{
		fmt.Sprintf(msg.DiagUser, r.UserID),
		fmt.Sprintf(msg.DiagTestnetFlag, r.TestnetFlag),
		fmt.Sprintf(msg.DiagMaskedKey, r.MaskedKey),
		fmt.Sprintf(msg.DiagSecretLen, r.SecretLen),
	}
	for _, c := range r.Checks {
		lines = append(lines, fmt.Sprintf(msg.DiagTestingEnv, c.Testnet))
		if c.OK {
			lines = append(lines, fmt.Sprintf(msg.DiagNumericBalance, c.Balance))
		} else {
			code, _ := c.Envelope.Code()
			lines = append(lines, fmt.Sprintf(msg.DiagErrorEnvelope, code, c.Envelope.Message()))
		}
		if c.ClockError != "" {
			lines = append(lines, fmt.Sprintf(msg.DiagClockFailed, c.ClockError))
		} else {
			lines = append(lines, fmt.Sprintf(msg.DiagClockOffset, c.ClockOffsetMs))
		}
	}
	return lines
}

// String joins Lines.
func (r Report) String() string {
	return strings.Join(r.Lines(), "\n")
}
