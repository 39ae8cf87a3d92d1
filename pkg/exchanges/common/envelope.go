package common

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Envelope is a decoded exchange response. Failures travel as data: callers
// inspect IsError instead of receiving a Go error.
type Envelope struct {
	HTTPStatus int
	// Transient marks timeouts and connection failures; they never count as
	// authentication failures.
	Transient bool
	Body      map[string]any
}

// TransportEnvelope builds the envelope returned when no response arrived.
func TransportEnvelope(err error) Envelope {
	msg := "transport error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope{
		Transient: true,
		Body:      map[string]any{"retCode": -1.0, "retMsg": msg},
	}
}

// StatusEnvelope builds the envelope for an undecodable response body.
func StatusEnvelope(status int, text string) Envelope {
	if text == "" {
		text = "HTTP " + strconv.Itoa(status)
	}
	return Envelope{
		HTTPStatus: status,
		Body:       map[string]any{"retCode": float64(status), "retMsg": text},
	}
}

// Code returns retCode (or code) when the body carries one.
func (e Envelope) Code() (int, bool) {
	for _, key := range []string{"retCode", "code"} {
		v, ok := e.Body[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t), true
		case json.Number:
			n, err := t.Int64()
			if err == nil {
				return int(n), true
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Message returns retMsg, msg or message, whichever is present first.
func (e Envelope) Message() string {
	for _, key := range []string{"retMsg", "msg", "message"} {
		if s, ok := e.Body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Result returns the body's result member.
func (e Envelope) Result() any {
	return e.Body["result"]
}

// IsError reports a transport failure, HTTP status >= 400, or a non-zero
// response code.
func (e Envelope) IsError() bool {
	if e.Transient || e.HTTPStatus >= 400 {
		return true
	}
	if code, ok := e.Code(); ok {
		return code != 0
	}
	return false
}

// MarshalJSON renders the body only.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Body == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Body)
}

// BalanceResult is either a numeric equity or the error envelope that
// prevented reading one.
type BalanceResult struct {
	Equity   float64
	OK       bool
	Envelope Envelope
}

// Balance wraps a successful equity reading.
func Balance(equity float64) BalanceResult {
	return BalanceResult{Equity: equity, OK: true}
}

// BalanceError wraps an error envelope.
func BalanceError(env Envelope) BalanceResult {
	return BalanceResult{Envelope: env}
}
