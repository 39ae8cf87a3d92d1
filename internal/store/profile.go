package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Top-level profile keys as they appear in the profiles document.
const (
	KeyUsername     = "username"
	KeyAPIKey       = "api_key"
	KeyAPISecret    = "api_secret"
	KeySubUntil     = "sub_until"
	KeySettings     = "settings"
	KeyAuthFailures = "_auth_failures"
	KeyPositions    = "_positions"
)

// Settings keys read by the core.
const (
	SettingUseRSI        = "USE_RSI"
	SettingRSIPeriod     = "RSI_PERIOD"
	SettingUseEMA        = "USE_EMA"
	SettingFastMA        = "FAST_MA"
	SettingSlowMA        = "SLOW_MA"
	SettingUseMACD       = "USE_MACD"
	SettingMACDFast      = "MACD_FAST"
	SettingMACDSlow      = "MACD_SLOW"
	SettingMACDSignal    = "MACD_SIGNAL"
	SettingUseOI         = "USE_OI"
	SettingOIWindow      = "OI_WINDOW"
	SettingOrderPercent  = "ORDER_PERCENT"
	SettingOrderSizeUSD  = "ORDER_SIZE_USD"
	SettingQtyPrecision  = "QTY_PRECISION"
	SettingMinNotional   = "MIN_NOTIONAL"
	SettingSymbols       = "SYMBOLS"
	SettingTestnet       = "TESTNET"
	SettingDryRun        = "DRY_RUN"
	SettingDisabledAuth  = "DISABLED_AUTH"
)

// subTimeLayout matches the naive ISO format the profiles file has always used.
const subTimeLayout = "2006-01-02T15:04:05.000000"

// Numbers are float64 and lists []any so a normalized profile compares equal
// to its own JSON round trip.
func defaultSettings() map[string]any {
	return map[string]any{
		"USE_RSI":                 true,
		"RSI_PERIOD":              14.0,
		"RSI_OVERSOLD":            40.0,
		"RSI_OVERBOUGHT":          60.0,
		"USE_EMA":                 true,
		"FAST_MA":                 50.0,
		"SLOW_MA":                 200.0,
		"USE_MACD":                true,
		"MACD_FAST":               8.0,
		"MACD_SLOW":               21.0,
		"MACD_SIGNAL":             5.0,
		"USE_OI":                  false,
		"OI_WINDOW":               3.0,
		"OI_MIN_CHANGE_PCT":       5.0,
		"OI_DIRECTION":            "up",
		"BUY_CONFIRMATION_RATIO":  0.66,
		"SELL_CONFIRMATION_RATIO": 0.33,
		"ORDER_PERCENT":           10.0,
		"ORDER_SIZE_USD":          0.0,
		"TP_PCT":                  1.0,
		"SL_PCT":                  0.5,
		"QTY_PRECISION":           6.0,
		"MIN_NOTIONAL":            5.0,
		"SYMBOLS":                 []any{"BTCUSDT"},
		"TESTNET":                 true,
		"DRY_RUN":                 true,
		"DISABLED_AUTH":           false,
	}
}

// DefaultSettingKeys lists every settings key a normalized profile carries.
func DefaultSettingKeys() []string {
	defs := defaultSettings()
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultUsername is the placeholder name for a profile created without one.
func DefaultUsername(id string) string {
	return "user_" + id
}

// Normalize fills every missing field of raw with its default and reports
// whether anything was added. Existing values are never replaced, except a
// non-object settings value which cannot hold the defaults.
func Normalize(raw map[string]any, defaultUsername string) bool {
	changed := false
	setDefault := func(m map[string]any, key string, v any) {
		if _, ok := m[key]; !ok {
			m[key] = v
			changed = true
		}
	}

	setDefault(raw, KeyUsername, defaultUsername)
	setDefault(raw, KeyAPIKey, "")
	setDefault(raw, KeyAPISecret, "")
	setDefault(raw, KeySubUntil, nil)

	settings, ok := raw[KeySettings].(map[string]any)
	if !ok {
		settings = map[string]any{}
		raw[KeySettings] = settings
		changed = true
	}
	for k, v := range defaultSettings() {
		setDefault(settings, k, v)
	}

	setDefault(raw, KeyAuthFailures, 0.0)
	setDefault(raw, KeyPositions, map[string]any{})
	return changed
}

// Profile is the typed view of one normalized profile.
type Profile struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	APIKey       string         `json:"api_key"`
	APISecret    string         `json:"api_secret"`
	SubUntil     string         `json:"sub_until,omitempty"`
	Settings     Settings       `json:"settings"`
	AuthFailures int            `json:"_auth_failures"`
	Positions    map[string]any `json:"_positions"`
}

func profileFromRaw(id string, raw map[string]any) Profile {
	p := Profile{
		ID:           id,
		Username:     asString(raw[KeyUsername]),
		APIKey:       asString(raw[KeyAPIKey]),
		APISecret:    asString(raw[KeyAPISecret]),
		SubUntil:     asString(raw[KeySubUntil]),
		AuthFailures: int(asFloat(raw[KeyAuthFailures], 0)),
	}
	if s, ok := raw[KeySettings].(map[string]any); ok {
		p.Settings = Settings(s)
	} else {
		p.Settings = Settings{}
	}
	if pos, ok := raw[KeyPositions].(map[string]any); ok {
		p.Positions = pos
	} else {
		p.Positions = map[string]any{}
	}
	return p
}

// applyTo writes the typed fields back over raw, leaving unknown keys alone.
func (p Profile) applyTo(raw map[string]any) {
	raw[KeyUsername] = p.Username
	raw[KeyAPIKey] = p.APIKey
	raw[KeyAPISecret] = p.APISecret
	if p.SubUntil == "" {
		raw[KeySubUntil] = nil
	} else {
		raw[KeySubUntil] = p.SubUntil
	}
	if p.Settings == nil {
		p.Settings = Settings{}
	}
	raw[KeySettings] = map[string]any(p.Settings)
	raw[KeyAuthFailures] = float64(p.AuthFailures)
	if p.Positions == nil {
		p.Positions = map[string]any{}
	}
	raw[KeyPositions] = p.Positions
}

// HasCredentials reports whether both key and secret are configured.
func (p Profile) HasCredentials() bool {
	return strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.APISecret) != ""
}

// SubscriptionActive reports whether sub_until is set, parseable and after now.
func (p Profile) SubscriptionActive(now time.Time) bool {
	if p.SubUntil == "" {
		return false
	}
	until, err := ParseSubUntil(p.SubUntil)
	if err != nil {
		return false
	}
	return until.After(now)
}

// Disabled reports the DISABLED_AUTH flag.
func (p Profile) Disabled() bool {
	return p.Settings.Bool(SettingDisabledAuth, false)
}

// Testnet reports the TESTNET flag.
func (p Profile) Testnet() bool {
	return p.Settings.Bool(SettingTestnet, true)
}

// FormatSubUntil renders t the way sub_until is stored (naive UTC).
func FormatSubUntil(t time.Time) string {
	return t.UTC().Format(subTimeLayout)
}

var subUntilLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseSubUntil parses a stored subscription timestamp; naive values are UTC.
func ParseSubUntil(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range subUntilLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(s))
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Settings is the free-form settings mapping of a profile.
type Settings map[string]any

// Bool reads a boolean setting; strings "true"/"1" and non-zero numbers count.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case float64:
		return v != 0
	case int:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return def
		}
		return f != 0
	default:
		return def
	}
}

// Float reads a numeric setting.
func (s Settings) Float(key string, def float64) float64 {
	return asFloat(s[key], def)
}

// Int reads a numeric setting truncated to int.
func (s Settings) Int(key string, def int) int {
	return int(asFloat(s[key], float64(def)))
}

// String reads a string setting.
func (s Settings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Strings reads a list setting; a comma-separated string is accepted too.
func (s Settings) Strings(key string) []string {
	var out []string
	switch v := s[key].(type) {
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case []string:
		for _, str := range v {
			if strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if t := strings.TrimSpace(part); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func asFloat(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return def
	}
}
