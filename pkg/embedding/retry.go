// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	"crypto/rand"
	"encoding/binary"
	"net/http"
	"strings"
	"time"
)

// RetryConfig controls the jittered exponential backoff applied to
// embedding calls that fail with a retryable error (spec.md §4.2: 429/503
// and timeouts, up to max_retries).
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches spec.md's documented default of 3 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.Multiplier <= 1.0 {
		c.Multiplier = 2.0
	}
	return c
}

// backoffWithFullJitter returns a duration in [0, base*multiplier^attempt]
// capped at maxBackoff, using crypto/rand so concurrent embed workers don't
// retry in lockstep.
func backoffWithFullJitter(cfg RetryConfig, attempt int) time.Duration {
	exp := float64(cfg.InitialBackoff)
	for i := 0; i < attempt; i++ {
		exp *= cfg.Multiplier
	}
	capped := time.Duration(exp)
	if capped > cfg.MaxBackoff {
		capped = cfg.MaxBackoff
	}
	if capped <= 0 {
		return cfg.InitialBackoff
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return capped
	}
	n := binary.BigEndian.Uint64(b[:]) % uint64(capped)
	return time.Duration(n)
}

// isRetryableStatus reports whether an HTTP status code should be retried:
// 429 (rate limited) and 5xx (server-side failure), per spec.md §4.2.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// isRetryableNetErr classifies transport-level failures (timeouts, reset
// connections, EOF) as retryable the same way pkg/ingestion's
// isRetryableEmbeddingError did, without depending on provider internals.
func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection refused", "connection reset", "deadline exceeded", "eof", "temporarily unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
