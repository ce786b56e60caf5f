package vfskit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Well-known config keys.
const (
	KeyVisibility     = "visibility"
	KeyMimetype       = "mimetype"
	KeyDisableAsserts = "disable_asserts"
	KeyCaseSensitive  = "case_sensitive"
)

// Config is an ordered set of named options with an optional fallback.
//
// Lookups consult the local values first and then walk the fallback chain.
// The fallback is fixed when the Config is built; attaching a different
// parent produces a new Config (see WithFallback).
type Config struct {
	keys     []string
	values   map[string]any
	fallback *Config
}

// NewConfig creates a Config from settings. Keys are stored in sorted order
// so iteration is deterministic.
func NewConfig(settings map[string]any) *Config {
	c := &Config{values: make(map[string]any, len(settings))}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c.Set(k, settings[k])
	}
	return c
}

// NewConfigWithFallback creates a Config from settings delegating to parent
// for keys it does not hold.
func NewConfigWithFallback(settings map[string]any, parent *Config) (*Config, error) {
	return NewConfig(settings).WithFallback(parent)
}

// Get returns the value for key, consulting the fallback chain, or def when
// no Config in the chain holds it.
func (c *Config) Get(key string, def any) any {
	for cur := c; cur != nil; cur = cur.fallback {
		if v, ok := cur.values[key]; ok {
			return v
		}
	}
	return def
}

// Has reports whether key is set locally or anywhere in the fallback chain.
func (c *Config) Has(key string) bool {
	for cur := c; cur != nil; cur = cur.fallback {
		if _, ok := cur.values[key]; ok {
			return true
		}
	}
	return false
}

// Set stores value under key and returns the Config for chaining.
func (c *Config) Set(key string, value any) *Config {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
	return c
}

// Keys returns the locally set keys in insertion order.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Fallback returns the parent Config, if any.
func (c *Config) Fallback() *Config {
	if c == nil {
		return nil
	}
	return c.fallback
}

// WithFallback returns a copy of c that delegates to parent. A nil parent
// yields a plain copy. Referencing c itself, directly or through parent's
// chain, is rejected with ErrInvalidConfig.
func (c *Config) WithFallback(parent *Config) (*Config, error) {
	for cur := parent; cur != nil; cur = cur.fallback {
		if cur == c {
			return nil, fmt.Errorf("%w: config can not fall back to itself", ErrInvalidConfig)
		}
	}

	out := c.clone()
	out.fallback = parent
	return out, nil
}

func (c *Config) clone() *Config {
	out := &Config{values: make(map[string]any)}
	if c == nil {
		return out
	}
	for _, k := range c.keys {
		out.Set(k, c.values[k])
	}
	out.fallback = c.fallback
	return out
}

// GetString returns the value for key as a string, or def when unset or of a
// different type.
func (c *Config) GetString(key, def string) string {
	switch v := c.Get(key, nil).(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return def
	}
}

// GetBool returns the value for key as a bool. String values "1", "true",
// "yes" and "on" count as true.
func (c *Config) GetBool(key string, def bool) bool {
	switch v := c.Get(key, nil).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off", "":
			return false
		}
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return def
	case int:
		return v != 0
	default:
		return def
	}
}
