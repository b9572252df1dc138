package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Keys lists the scalar configuration keys accepted by Get and Set.
var Keys = []string{
	"dispatch.pool_size",
	"dispatch.selection",
	"context.ttl",
	"context.sweep_interval",
	"gateway.timeout",
	"gateway.pool_size",
	"gateway.max_queue",
	"gateway.signals_dir",
	"state.path",
	"logging.debug",
	"catalog",
}

// Get returns a configuration value by dot-notation key. Map-valued
// sections are addressed as capabilities.<type> and gateway.endpoints.<name>.
func (c *Config) Get(key string) (string, error) {
	key = strings.ToLower(key)
	if name, ok := strings.CutPrefix(key, "capabilities."); ok {
		return c.Capabilities[name], nil
	}
	if name, ok := strings.CutPrefix(key, "gateway.endpoints."); ok {
		return c.Gateway.Endpoints[name], nil
	}

	switch key {
	case "dispatch.pool_size":
		return strconv.Itoa(c.Dispatch.PoolSize), nil
	case "dispatch.selection":
		return c.Dispatch.Selection, nil
	case "context.ttl":
		return c.Context.TTL.String(), nil
	case "context.sweep_interval":
		return c.Context.SweepInterval.String(), nil
	case "gateway.timeout":
		return c.Gateway.Timeout.String(), nil
	case "gateway.pool_size":
		return strconv.Itoa(c.Gateway.PoolSize), nil
	case "gateway.max_queue":
		return strconv.Itoa(c.Gateway.MaxQueue), nil
	case "gateway.signals_dir":
		return c.Gateway.SignalsDir, nil
	case "state.path":
		return c.State.Path, nil
	case "logging.debug":
		return strconv.FormatBool(c.Logging.Debug), nil
	case "catalog":
		return c.Catalog, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// Set parses value and assigns it to key.
func (c *Config) Set(key, value string) error {
	key = strings.ToLower(key)
	if name, ok := strings.CutPrefix(key, "capabilities."); ok {
		if c.Capabilities == nil {
			c.Capabilities = make(map[string]string)
		}
		c.Capabilities[name] = value
		return nil
	}
	if name, ok := strings.CutPrefix(key, "gateway.endpoints."); ok {
		if c.Gateway.Endpoints == nil {
			c.Gateway.Endpoints = make(map[string]string)
		}
		c.Gateway.Endpoints[name] = value
		return nil
	}

	switch key {
	case "dispatch.pool_size":
		return setInt(&c.Dispatch.PoolSize, key, value)
	case "dispatch.selection":
		if value != "historical" && value != "in_flight" {
			return fmt.Errorf("invalid value for %s: %q (want historical or in_flight)", key, value)
		}
		c.Dispatch.Selection = value
	case "context.ttl":
		return setDuration(&c.Context.TTL, key, value)
	case "context.sweep_interval":
		return setDuration(&c.Context.SweepInterval, key, value)
	case "gateway.timeout":
		return setDuration(&c.Gateway.Timeout, key, value)
	case "gateway.pool_size":
		return setInt(&c.Gateway.PoolSize, key, value)
	case "gateway.max_queue":
		return setInt(&c.Gateway.MaxQueue, key, value)
	case "gateway.signals_dir":
		c.Gateway.SignalsDir = value
	case "state.path":
		c.State.Path = value
	case "logging.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		c.Logging.Debug = b
	case "catalog":
		c.Catalog = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// Entries returns every key and value, map sections expanded, sorted by key.
func (c *Config) Entries() [][2]string {
	var out [][2]string
	for _, k := range Keys {
		v, _ := c.Get(k)
		out = append(out, [2]string{k, v})
	}
	for _, name := range slices.Sorted(maps.Keys(c.Capabilities)) {
		out = append(out, [2]string{"capabilities." + name, c.Capabilities[name]})
	}
	for _, name := range slices.Sorted(maps.Keys(c.Gateway.Endpoints)) {
		out = append(out, [2]string{"gateway.endpoints." + name, c.Gateway.Endpoints[name]})
	}
	slices.SortStableFunc(out, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return out
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if n <= 0 {
		return fmt.Errorf("invalid value for %s: must be positive", key)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid duration for %s: must be positive", key)
	}
	*dst = d
	return nil
}
