package config

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/viper"
)

// SystemConfig keys recognized by the engine.
const (
	KeyJFrogBaseURL      = "JFrogBaseURL"
	KeyJFrogUser         = "SVCJFROGUSR"
	KeyJFrogPass         = "SVCJFROGPAS"
	KeyBaseDrive         = "BaseDrive"
	KeyMaxConcurrent     = "MaxConcurrentThreads"
	KeyPollingFrequency  = "DefaultPollingFrequency"
	KeyMaxBuildsToKeep   = "MaxBuildsToKeep"
	KeyDownloadTimeout   = "DownloadTimeout"
	KeyExtractionTimeout = "ExtractionTimeout"
	KeyRetryAttempts     = "RetryAttempts"
	KeyLogRetentionDays  = "LogRetentionDays"
	KeyMaxLookbackDays   = "MaxLookbackDays"
)

// Keys lists every recognized key, in the order the config command prints
// them.
var Keys = []string{
	KeyJFrogBaseURL,
	KeyJFrogUser,
	KeyJFrogPass,
	KeyBaseDrive,
	KeyMaxConcurrent,
	KeyPollingFrequency,
	KeyMaxBuildsToKeep,
	KeyDownloadTimeout,
	KeyExtractionTimeout,
	KeyRetryAttempts,
	KeyLogRetentionDays,
	KeyMaxLookbackDays,
}

// envOverrides maps WINCORE_* environment variables onto SystemConfig keys.
// Set variables win over database rows.
var envOverrides = map[string]string{
	KeyBaseDrive:     "WINCORE_BASE_DRIVE",
	KeyJFrogBaseURL:  "WINCORE_JFROG_URL",
	KeyJFrogUser:     "WINCORE_JFROG_USER",
	KeyJFrogPass:     "WINCORE_JFROG_PASS",
	KeyMaxConcurrent: "WINCORE_MAX_CONCURRENCY",
}

// hardMaxConcurrency is the cap on MaxConcurrentThreads whatever the table
// says.
const hardMaxConcurrency = 10000

// cacheTTL is how long a loaded snapshot is served before re-reading.
const cacheTTL = 60 * time.Second

// Source supplies the raw key/value rows, normally the store.
type Source interface {
	SystemConfig(ctx context.Context) (map[string]string, error)
}

// Provider reads and caches system configuration with environment overrides.
type Provider struct {
	source Source
	clock  clock.Clock
	v      *viper.Viper

	mu        sync.RWMutex
	values    map[string]string
	fetchedAt time.Time
}

// NewProvider creates a provider over the given source.
func NewProvider(source Source, clk clock.Clock) *Provider {
	v := viper.New()
	for _, env := range envOverrides {
		v.BindEnv(env, env)
	}
	return &Provider{
		source: source,
		clock:  clk,
		v:      v,
	}
}

// Get returns the value for key, or ok=false when absent.
func (p *Provider) Get(ctx context.Context, key string) (string, bool, error) {
	if env, found := envOverrides[key]; found {
		if val := p.v.GetString(env); val != "" {
			return val, true, nil
		}
	}

	values, err := p.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	val, ok := values[key]
	return val, ok, nil
}

// Require returns the value for key or an error when it is absent or empty.
func (p *Provider) Require(ctx context.Context, key string) (string, error) {
	val, ok, err := p.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || val == "" {
		return "", fmt.Errorf("missing required config key %s", key)
	}
	return val, nil
}

// Reload drops the cached snapshot so the next read hits the source.
func (p *Provider) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = nil
	p.fetchedAt = time.Time{}
}

func (p *Provider) snapshot(ctx context.Context) (map[string]string, error) {
	p.mu.RLock()
	if p.values != nil && p.clock.Now().Sub(p.fetchedAt) < cacheTTL {
		values := p.values
		p.mu.RUnlock()
		return values, nil
	}
	p.mu.RUnlock()

	values, err := p.source.SystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	p.mu.Lock()
	p.values = values
	p.fetchedAt = p.clock.Now()
	p.mu.Unlock()
	return values, nil
}

func (p *Provider) intValue(ctx context.Context, key string, def, min, max int) int {
	val, ok, err := p.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	if n < min {
		n = min
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// MaxConcurrentThreads is clamped to [1, 10000].
func (p *Provider) MaxConcurrentThreads(ctx context.Context) int {
	return p.intValue(ctx, KeyMaxConcurrent, 100, 1, hardMaxConcurrency)
}

// MaxBuildsToKeep is the retention window, at least 1, default 5.
func (p *Provider) MaxBuildsToKeep(ctx context.Context) int {
	return p.intValue(ctx, KeyMaxBuildsToKeep, 5, 1, 0)
}

// DefaultPollingFrequency is the fallback tuple cadence, at least 30 s.
func (p *Provider) DefaultPollingFrequency(ctx context.Context) time.Duration {
	return time.Duration(p.intValue(ctx, KeyPollingFrequency, 300, 30, 0)) * time.Second
}

// DownloadTimeout bounds one archive download.
func (p *Provider) DownloadTimeout(ctx context.Context) time.Duration {
	return time.Duration(p.intValue(ctx, KeyDownloadTimeout, 300, 1, 0)) * time.Second
}

// ExtractionTimeout bounds one archive extraction.
func (p *Provider) ExtractionTimeout(ctx context.Context) time.Duration {
	return time.Duration(p.intValue(ctx, KeyExtractionTimeout, 300, 1, 0)) * time.Second
}

// RetryAttempts is the transient-error retry budget.
func (p *Provider) RetryAttempts(ctx context.Context) int {
	return p.intValue(ctx, KeyRetryAttempts, 3, 0, 0)
}

// LogRetentionDays is how long activity rows are kept.
func (p *Provider) LogRetentionDays(ctx context.Context) int {
	return p.intValue(ctx, KeyLogRetentionDays, 30, 1, 0)
}

// MaxLookbackDays bounds how far discovery walks back for a branch with no
// build today.
func (p *Provider) MaxLookbackDays(ctx context.Context) int {
	return p.intValue(ctx, KeyMaxLookbackDays, 7, 1, 0)
}

// Credentials returns the JFrog base URL, user and password, erroring on the
// first missing one. start refuses to run without them.
func (p *Provider) Credentials(ctx context.Context) (baseURL, user, pass string, err error) {
	if baseURL, err = p.Require(ctx, KeyJFrogBaseURL); err != nil {
		return
	}
	if user, err = p.Require(ctx, KeyJFrogUser); err != nil {
		return
	}
	pass, err = p.Require(ctx, KeyJFrogPass)
	return
}
