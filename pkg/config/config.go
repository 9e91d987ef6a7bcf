// Package config provides configuration management for vsrkv's session
// client and cache components.
//
// Configuration sources, in order of precedence:
//  1. Command-line flags (highest priority, client config only)
//  2. Environment variables
//  3. Default values (lowest priority)
//
// Environment variables are prefixed with "VSRKV_" and use uppercase names.
// For example, the cluster id can be set with VSRKV_CLUSTER_ID=7.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default session client configuration constants.
const (
	DefaultRequestQueueMax = 32
	DefaultPingTicks       = 3000  // 30s at a 10ms tick
	DefaultRTTTicks        = 20    // 200ms at a 10ms tick
	DefaultRTTMultiple     = 2
	DefaultMaxBackoffLog   = 16
	DefaultReplicaCount    = 3
)

// Default cache configuration constants.
const (
	DefaultCacheCapacity = 1 << 16
	DefaultCacheWays     = 8
	DefaultScopeMax      = 256
)

// SessionConfig holds the parameters needed to construct a SessionClient
// and the bus it talks over.
//
// Example:
//
//	cfg := config.LoadSessionConfig()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
type SessionConfig struct {
	Replicas        []string // Replica addresses, "host:port" (default: ["127.0.0.1:3001"])
	ClusterID       uint32   // Cluster identifier (default: 0)
	ReplicaCount    int      // Number of replicas (set to len(Replicas) by LoadSessionConfig)
	RequestQueueMax int      // Max in-flight + queued requests (default: 32)
	PingTicks       uint64   // Ping period in ticks (default: 3000)
	RTTTicks        uint64   // Base request_timeout period in ticks (default: 20)
	RTTMultiple     uint64   // request_timeout multiplier (default: 2)
	MaxBackoffLog   uint32   // Cap on backoff doublings (default: 16)
}

// CacheConfig holds the parameters needed to construct a CacheMap.
type CacheConfig struct {
	Capacity int // Set-associative cache capacity, in entries (default: 65536)
	Ways     int // Set associativity (default: 8)
	ScopeMax int // Max entries recorded in one open scope (default: 256)
}

// LoadSessionConfig loads a SessionConfig from command-line flags and
// environment variables, with defaults.
//
// Command-line flags:
//
//	-replicas: comma-separated replica addresses
//	-cluster-id: cluster identifier
//
// Environment variables:
//
//	VSRKV_REPLICAS, VSRKV_CLUSTER_ID, VSRKV_REQUEST_QUEUE_MAX,
//	VSRKV_PING_TICKS, VSRKV_RTT_TICKS, VSRKV_RTT_MULTIPLE,
//	VSRKV_MAX_BACKOFF_LOG
func LoadSessionConfig() *SessionConfig {
	cfg := &SessionConfig{
		Replicas:        []string{"127.0.0.1:3001"},
		ClusterID:       0,
		RequestQueueMax: DefaultRequestQueueMax,
		PingTicks:       DefaultPingTicks,
		RTTTicks:        DefaultRTTTicks,
		RTTMultiple:     DefaultRTTMultiple,
		MaxBackoffLog:   DefaultMaxBackoffLog,
	}

	var replicas string
	var clusterID uint
	flag.StringVar(&replicas, "replicas", strings.Join(cfg.Replicas, ","), "Comma-separated replica addresses")
	flag.UintVar(&clusterID, "cluster-id", uint(cfg.ClusterID), "Cluster identifier")
	flag.Parse()

	cfg.Replicas = splitAndTrim(replicas)
	cfg.ClusterID = uint32(clusterID)
	cfg.ReplicaCount = len(cfg.Replicas)

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if v := os.Getenv("VSRKV_REPLICAS"); v != "" && !setFlags["replicas"] {
		cfg.Replicas = splitAndTrim(v)
		cfg.ReplicaCount = len(cfg.Replicas)
	}
	if v := os.Getenv("VSRKV_CLUSTER_ID"); v != "" && !setFlags["cluster-id"] {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.ClusterID = uint32(n)
		}
	}
	if v := os.Getenv("VSRKV_REQUEST_QUEUE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestQueueMax = n
		}
	}
	if v := os.Getenv("VSRKV_PING_TICKS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.PingTicks = n
		}
	}
	if v := os.Getenv("VSRKV_RTT_TICKS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.RTTTicks = n
		}
	}
	if v := os.Getenv("VSRKV_RTT_MULTIPLE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.RTTMultiple = n
		}
	}
	if v := os.Getenv("VSRKV_MAX_BACKOFF_LOG"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxBackoffLog = uint32(n)
		}
	}

	return cfg
}

// LoadCacheConfig loads a CacheConfig from environment variables, with
// defaults.
func LoadCacheConfig() *CacheConfig {
	cfg := &CacheConfig{
		Capacity: DefaultCacheCapacity,
		Ways:     DefaultCacheWays,
		ScopeMax: DefaultScopeMax,
	}

	if v := os.Getenv("VSRKV_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capacity = n
		}
	}
	if v := os.Getenv("VSRKV_CACHE_WAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ways = n
		}
	}
	if v := os.Getenv("VSRKV_SCOPE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScopeMax = n
		}
	}

	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the SessionConfig contains usable values.
func (c *SessionConfig) Validate() error {
	if len(c.Replicas) == 0 {
		return fmt.Errorf("at least one replica address must be specified")
	}
	for _, r := range c.Replicas {
		if !strings.Contains(r, ":") {
			return fmt.Errorf("invalid replica address format: %s", r)
		}
	}
	if c.ReplicaCount != len(c.Replicas) {
		return fmt.Errorf("replica_count (%d) does not match replica address count (%d)", c.ReplicaCount, len(c.Replicas))
	}
	if c.RequestQueueMax < 1 {
		return fmt.Errorf("request_queue_max must be positive: %d", c.RequestQueueMax)
	}
	if c.PingTicks < 1 {
		return fmt.Errorf("ping_ticks must be positive: %d", c.PingTicks)
	}
	if c.RTTTicks < 1 || c.RTTMultiple < 1 {
		return fmt.Errorf("rtt_ticks and rtt_multiple must be positive")
	}
	return nil
}

// Validate checks that the CacheConfig contains usable values.
func (c *CacheConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("cache capacity must be positive: %d", c.Capacity)
	}
	if c.Ways < 1 {
		return fmt.Errorf("cache ways must be positive: %d", c.Ways)
	}
	if c.Capacity%c.Ways != 0 {
		return fmt.Errorf("cache capacity (%d) must be a multiple of ways (%d)", c.Capacity, c.Ways)
	}
	if c.ScopeMax < 1 {
		return fmt.Errorf("scope_max must be positive: %d", c.ScopeMax)
	}
	return nil
}
