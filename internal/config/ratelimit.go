package config

import "time"

// RateLimitConfig drives the redis token bucket.  Login gets its own,
// tighter bucket through LoginCapacity.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, route, ip_route, user_route or ip_user_route
	Prefix         string
	Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "kompen:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	return c.normalise()
}

// Login returns the bucket applied to POST /auth/login: per IP, small
// capacity, slow refill.
func (c RateLimitConfig) Login() RateLimitConfig {
	l := c
	l.Capacity = envInt("LOGIN_RATE_LIMIT_CAPACITY", 5)
	l.RefillInterval = envDur("LOGIN_RATE_LIMIT_REFILL_INTERVAL", 12*time.Second)
	l.RefillTokens = 1
	l.KeyStrategy = "ip_route"
	return l.normalise()
}

func (c RateLimitConfig) normalise() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if floor := 5 * c.RefillInterval; c.TTL < floor {
		c.TTL = floor
	}
	return c
}
