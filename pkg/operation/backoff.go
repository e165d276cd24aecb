// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"math"
	"math/rand"
	"time"
)

// BackoffProfile shapes the retry schedule of an operation type. The delay
// before attempt n+1 is min(Base * 2^(n-1), Max) stretched by a random
// factor in [1, 1+Jitter].
type BackoffProfile struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Backoff profiles. Authz writes retry aggressively because permission
// convergence is user-visible; VPN and bastion backends are rate limited
// and get the relaxed schedule.
var (
	DefaultBackoff    = BackoffProfile{Base: 1 * time.Second, Max: 300 * time.Second, Jitter: 0.2}
	AggressiveBackoff = BackoffProfile{Base: 1 * time.Second, Max: 60 * time.Second, Jitter: 0.2}
	RelaxedBackoff    = BackoffProfile{Base: 5 * time.Second, Max: 600 * time.Second, Jitter: 0.2}
)

// BackoffFor returns the retry profile of an operation type.
func BackoffFor(t OpType) BackoffProfile {
	backend, err := t.BackendOf()
	if err != nil {
		return DefaultBackoff
	}
	switch backend {
	case BackendAuthz:
		return AggressiveBackoff
	case BackendVpn, BackendBastion:
		return RelaxedBackoff
	}
	return DefaultBackoff
}

// Delay computes the wait before the next attempt. attempt is the number of
// attempts already made, starting at 1.
func (p BackoffProfile) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	d *= 1 + rand.Float64()*p.Jitter
	return time.Duration(d)
}
