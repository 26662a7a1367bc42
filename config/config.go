// Package config implements the ambient configuration layer: a stdlib
// flag.FlagSet for command-line overrides plus an optional YAML file for
// static route/option definitions, parsed once at boot. It follows the
// shape of skipper's config/config.go (flag-backed Config struct with yaml
// tags, loaded by config.NewConfig) scaled down to this gateway's surface.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultAddress            = ":9090"
	defaultResponseTimeout    = 60 * time.Second
	defaultReplenishRate      = 10
	defaultBurstCapacity      = 20
	defaultEmptyKeyStatusCode = 403
	defaultRateLimitStatus    = 429
)

// RouteSource is one static route entry, parsed either from the YAML
// "routes" list or appended programmatically before boot.
type RouteSource struct {
	ID       string   `yaml:"id"`
	URI      string   `yaml:"uri"`
	Order    int      `yaml:"order"`
	Match    []string `yaml:"match"`   // predicate shortcut expressions, e.g. "Path=/api/**"
	Filters  []string `yaml:"filters"` // filter shortcut expressions
}

// Config is the gateway's full ambient configuration, built from flags and
// an optional YAML file. Flags take precedence when both set a value,
// matching skipper's "flags override file" convention.
type Config struct {
	Flags *flag.FlagSet

	ConfigFile string `yaml:"-"`
	Address    string `yaml:"address"`
	DevMode    bool   `yaml:"dev-mode"`

	ResponseTimeout time.Duration `yaml:"response-timeout"`

	RedisAddrs []string `yaml:"redis-addrs"`

	DefaultReplenishRate      int `yaml:"default-replenish-rate"`
	DefaultBurstCapacity      int `yaml:"default-burst-capacity"`
	DefaultEmptyKeyStatusCode int `yaml:"default-empty-key-status-code"`
	DefaultRateLimitStatus    int `yaml:"default-rate-limit-status"`

	Routes []RouteSource `yaml:"routes"`
}

// New builds a Config with defaults applied and the flag set registered but
// not yet parsed, mirroring skipper's pattern of constructing the flag set
// before calling flag.Parse in main.
func New() *Config {
	c := &Config{
		Address:                   defaultAddress,
		ResponseTimeout:           defaultResponseTimeout,
		DefaultReplenishRate:      defaultReplenishRate,
		DefaultBurstCapacity:      defaultBurstCapacity,
		DefaultEmptyKeyStatusCode: defaultEmptyKeyStatusCode,
		DefaultRateLimitStatus:    defaultRateLimitStatus,
	}

	c.Flags = flag.NewFlagSet("gateway", flag.ContinueOnError)
	c.Flags.StringVar(&c.ConfigFile, "config-file", "", "path to a YAML file with routes and options")
	c.Flags.StringVar(&c.Address, "address", c.Address, "address to listen on")
	c.Flags.BoolVar(&c.DevMode, "dev-mode", c.DevMode, "enable verbose debug logging")
	c.Flags.DurationVar(&c.ResponseTimeout, "response-timeout", c.ResponseTimeout, "upstream response timeout")
	c.Flags.IntVar(&c.DefaultReplenishRate, "default-replenish-rate", c.DefaultReplenishRate, "default rate limiter tokens per second")
	c.Flags.IntVar(&c.DefaultBurstCapacity, "default-burst-capacity", c.DefaultBurstCapacity, "default rate limiter bucket size")

	return c
}

// Parse parses args (typically os.Args[1:]) and, if -config-file was set,
// merges in the YAML file's routes and options. Parse parses the flags
// first and loads the file afterwards; LoadFile only takes fields that
// have no flag, so flags parsed from args always win, see LoadFile's doc.
func (c *Config) Parse(args []string) error {
	if err := c.Flags.Parse(args); err != nil {
		return err
	}
	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return fmt.Errorf("loading config file %q: %w", c.ConfigFile, err)
		}
	}
	return nil
}

// LoadFile merges route and static-option definitions from a YAML file into
// c. Because c's scalar fields were already populated by flag defaults or
// explicit flags before this is called, only Routes and RedisAddrs are
// taken from the file; every other field in the file is ignored — flags win.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return err
	}

	c.Routes = append(c.Routes, fromFile.Routes...)
	if len(fromFile.RedisAddrs) > 0 {
		c.RedisAddrs = fromFile.RedisAddrs
	}

	return nil
}
