package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minios-linux/modtranslate/translate"
)

// QuotaState is the provider-reported request window of the currently
// selected credential. It is replaced on every probe, decremented after
// each successful call, and dropped when the credential changes.
type QuotaState struct {
	Requests         int
	Interval         string
	CreditsRemaining *float64
	CreditsTotal     *float64
}

type quotaResponse struct {
	Data struct {
		RateLimit struct {
			Requests int    `json:"requests"`
			Interval string `json:"interval"`
		} `json:"rate_limit"`
		Credits *struct {
			Remaining *float64 `json:"remaining"`
			Total     *float64 `json:"total"`
		} `json:"credits"`
	} `json:"data"`
}

// ProbeQuota fetches the quota window of the current credential and stores
// it as the client's QuotaState. A client without a quota URL returns nil
// state and no error.
func (c *Client) ProbeQuota(ctx context.Context) (*QuotaState, error) {
	if c.opts.QuotaURL == "" {
		return nil, nil
	}

	c.mu.Lock()
	idx := c.pool.CurrentIndex()
	key, err := c.pool.Current()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.QuotaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating quota request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, c.Name(), "quota probe failed", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, c.Name(), "reading quota response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, translate.Errorf(translate.KindServiceUnavailable, c.Name(),
			"quota endpoint returned status %d: %s", resp.StatusCode, translate.Truncate(string(body), 200))
	}

	var qr quotaResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, c.Name(), "parsing quota response", err)
	}

	state := &QuotaState{
		Requests: qr.Data.RateLimit.Requests,
		Interval: qr.Data.RateLimit.Interval,
	}
	if qr.Data.Credits != nil {
		state.CreditsRemaining = qr.Data.Credits.Remaining
		state.CreditsTotal = qr.Data.Credits.Total
	}

	c.mu.Lock()
	// A rotation during the probe makes this state stale.
	if c.pool.CurrentIndex() == idx {
		c.quota = state
	}
	c.mu.Unlock()

	c.logger.Debug().
		Int("key_index", idx).
		Int("requests", state.Requests).
		Str("interval", state.Interval).
		Msg("quota probed")
	return state, nil
}

// Pace suspends the caller for the quota interval when the current window
// has no requests left, then re-probes. It is a no-op without quota state
// or while requests remain.
func (c *Client) Pace(ctx context.Context) error {
	c.mu.Lock()
	q := c.quota
	c.mu.Unlock()
	if q == nil || q.Requests > 0 {
		return nil
	}

	wait, err := ParseInterval(q.Interval)
	if err != nil {
		c.logger.Warn().Err(err).Str("interval", q.Interval).Msg("unparseable quota interval, not pacing")
		return nil
	}

	c.logger.Info().Dur("wait", wait).Msg("quota window exhausted, pausing")
	if err := c.sleep(ctx, wait); err != nil {
		return err
	}
	if _, err := c.ProbeQuota(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("quota re-probe failed")
	}
	return nil
}

// consumeQuota decrements the local request counter after a successful call.
func (c *Client) consumeQuota() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quota != nil && c.quota.Requests > 0 {
		c.quota.Requests--
	}
}

// Quota returns a copy of the current quota state, or nil.
func (c *Client) Quota() *QuotaState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quota == nil {
		return nil
	}
	q := *c.quota
	return &q
}

// ParseInterval converts a quota interval ("60s", "1m", "10") to a
// duration. Bare numbers are seconds.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative interval %q", s)
		}
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %q", s)
	}
	return d, nil
}
