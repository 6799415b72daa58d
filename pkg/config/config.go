// Package config loads runtime toggles for a bitchat-core node from
// environment variables, following the defaulted-constant style of the
// teacher's cfg/cfg_def.go, with parsing/validation grounded on
// flags/flags.go's pflag usage (spec §8: operational toggles).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults mirror spec §8's operational toggle table.
const (
	DefaultMaxConnOverall = 200
	DefaultMaxConnServer  = 50
	DefaultMaxConnClient  = 50
	DefaultVerboseLog     = false
	DefaultPacketRelay    = true
)

// Config holds the environment-derived toggles a Node reads at startup.
type Config struct {
	MaxConnOverall     int
	MaxConnServer      int
	MaxConnClient      int
	VerboseLog         bool
	PacketRelayEnabled bool
}

// FromEnv reads MAX_CONN_OVERALL, MAX_CONN_SERVER, MAX_CONN_CLIENT,
// VERBOSE_LOG and PACKET_RELAY_ENABLED, falling back to defaults for any
// variable that is unset or empty. A value that does not parse is an
// error.
func FromEnv() (Config, error) {
	c := Config{
		MaxConnOverall:     DefaultMaxConnOverall,
		MaxConnServer:      DefaultMaxConnServer,
		MaxConnClient:      DefaultMaxConnClient,
		VerboseLog:         DefaultVerboseLog,
		PacketRelayEnabled: DefaultPacketRelay,
	}

	var err error
	if c.MaxConnOverall, err = intEnv("MAX_CONN_OVERALL", c.MaxConnOverall); err != nil {
		return Config{}, err
	}
	if c.MaxConnServer, err = intEnv("MAX_CONN_SERVER", c.MaxConnServer); err != nil {
		return Config{}, err
	}
	if c.MaxConnClient, err = intEnv("MAX_CONN_CLIENT", c.MaxConnClient); err != nil {
		return Config{}, err
	}
	if c.VerboseLog, err = boolEnv("VERBOSE_LOG", c.VerboseLog); err != nil {
		return Config{}, err
	}
	if c.PacketRelayEnabled, err = boolEnv("PACKET_RELAY_ENABLED", c.PacketRelayEnabled); err != nil {
		return Config{}, err
	}

	if c.MaxConnServer+c.MaxConnClient > c.MaxConnOverall {
		return Config{}, fmt.Errorf("config: MAX_CONN_SERVER(%d)+MAX_CONN_CLIENT(%d) exceeds MAX_CONN_OVERALL(%d)",
			c.MaxConnServer, c.MaxConnClient, c.MaxConnOverall)
	}
	return c, nil
}

func intEnv(name string, def int) (int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}

func boolEnv(name string, def bool) (bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}
