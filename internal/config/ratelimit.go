package config

import (
	"os"
	"strings"
	"time"
)

// RateLimitConfig sizes the per-user token bucket in front of /booking.
// Every read and write of a booking spends one token; a caller that runs
// dry gets 429 until the bucket refills.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // burst of booking requests allowed at once
	RefillTokens   int           // tokens returned every RefillInterval
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire from Redis after this
	KeyStrategy    string        // which of ip, user and route name a bucket
	Prefix         string
	Debug          bool // echo the bucket key in X-RateLimit-Key
}

// rateKeyStrategies are the bucket keys understood by the middleware.
var rateKeyStrategies = map[string]bool{
	"ip": true, "user": true, "route": true,
	"ip_user": true, "ip_route": true, "user_route": true, "ip_user_route": true,
}

// LoadRateLimitConfig reads RATE_LIMIT_*.  RATE_LIMIT_BURST and
// RATE_LIMIT_REFILL_EVERY are shorthands that win over CAPACITY and the
// REFILL_TOKENS/REFILL_INTERVAL pair.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if burst := envInt("RATE_LIMIT_BURST", -1); burst > 0 {
		cfg.Capacity = burst
	}
	if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		cfg.RefillTokens = 1
		cfg.RefillInterval = every
	}
	cfg.normalize()
	return cfg
}

// normalize keeps the bucket usable: at least one booking request per
// refill, and buckets that outlive a few refills so a user's spent tokens
// are not forgotten between requests.
func (c *RateLimitConfig) normalize() {
	c.Capacity = max(c.Capacity, 1)
	c.RefillTokens = max(c.RefillTokens, 1)
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	c.TTL = max(c.TTL, 5*c.RefillInterval)
	c.KeyStrategy = strings.ToLower(strings.TrimSpace(c.KeyStrategy))
	if !rateKeyStrategies[c.KeyStrategy] {
		c.KeyStrategy = "ip_user_route"
	}
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
