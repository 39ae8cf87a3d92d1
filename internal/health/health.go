// Package health runs operator health probes: profile and ledger files,
// exchange reachability, the market cache and the admin API.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status of one probe or of the whole report.
type Status string

const (
	Healthy   Status = "HEALTHY"
	Degraded  Status = "DEGRADED"
	Unhealthy Status = "UNHEALTHY"
)

// Check is the result of one probe.
type Check struct {
	Service   string    `json:"service"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report aggregates checks; Overall is the worst status seen.
type Report struct {
	Overall  Status  `json:"overall"`
	Services []Check `json:"services"`
}

// Probe performs one check.
type Probe func(ctx context.Context) Check

// Run executes probes in order.
func Run(ctx context.Context, probes ...Probe) Report {
	rep := Report{Overall: Healthy, Services: make([]Check, 0, len(probes))}
	for _, p := range probes {
		c := p(ctx)
		if c.Timestamp.IsZero() {
			c.Timestamp = time.Now()
		}
		rep.Services = append(rep.Services, c)
		switch {
		case c.Status == Unhealthy:
			rep.Overall = Unhealthy
		case c.Status == Degraded && rep.Overall != Unhealthy:
			rep.Overall = Degraded
		}
	}
	return rep
}

func check(service string, status Status, format string, args ...any) Check {
	return Check{Service: service, Status: status, Message: fmt.Sprintf(format, args...), Timestamp: time.Now()}
}

// Profiles checks that the profiles document loads.
func Profiles(count func() int) Probe {
	return func(context.Context) Check {
		n := count()
		if n == 0 {
			return check("Profiles", Degraded, "no users configured")
		}
		return check("Profiles", Healthy, "%d users", n)
	}
}

// Ledger checks that the trade ledger answers a query.
func Ledger(query func(ctx context.Context) error) Probe {
	return func(ctx context.Context) Check {
		if err := query(ctx); err != nil {
			return check("Ledger", Unhealthy, "query failed: %v", err)
		}
		return check("Ledger", Healthy, "readable")
	}
}

// Exchange checks that an exchange environment reports its server time.
func Exchange(name string, serverTime func(ctx context.Context) (int64, error)) Probe {
	return func(ctx context.Context) Check {
		ms, err := serverTime(ctx)
		if err != nil {
			return check(name, Unhealthy, "connection failed: %v", err)
		}
		skew := time.Duration(ms-time.Now().UnixMilli()) * time.Millisecond
		if skew < -time.Second || skew > time.Second {
			return check(name, Degraded, "clock skew %s", skew)
		}
		return check(name, Healthy, "server time %d", ms)
	}
}

// Cache reports whether the shared market cache is reachable.
func Cache(healthy func() bool) Probe {
	return func(context.Context) Check {
		if !healthy() {
			return check("Market cache", Degraded, "unreachable, requests go to the exchange")
		}
		return check("Market cache", Healthy, "connected")
	}
}

// AdminAPI checks the admin API /health endpoint. An unreachable API is
// degraded because it is optional.
func AdminAPI(client *http.Client, url string) Probe {
	return func(ctx context.Context) Check {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return check("Admin API", Unhealthy, "bad url: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return check("Admin API", Degraded, "not reachable: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return check("Admin API", Unhealthy, "status %d", resp.StatusCode)
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "ok" {
			return check("Admin API", Unhealthy, "unexpected body")
		}
		return check("Admin API", Healthy, "ok")
	}
}
