package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.MaxConnOverall != DefaultMaxConnOverall {
		t.Fatalf("unexpected default MaxConnOverall: %d", c.MaxConnOverall)
	}
	if c.PacketRelayEnabled != DefaultPacketRelay {
		t.Fatalf("unexpected default PacketRelayEnabled: %v", c.PacketRelayEnabled)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONN_OVERALL", "10")
	t.Setenv("MAX_CONN_SERVER", "4")
	t.Setenv("MAX_CONN_CLIENT", "4")
	t.Setenv("VERBOSE_LOG", "true")
	t.Setenv("PACKET_RELAY_ENABLED", "false")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.MaxConnOverall != 10 || c.MaxConnServer != 4 || c.MaxConnClient != 4 {
		t.Fatalf("unexpected overrides: %+v", c)
	}
	if !c.VerboseLog || c.PacketRelayEnabled {
		t.Fatalf("unexpected bool overrides: %+v", c)
	}
}

func TestFromEnvRejectsOverCommitted(t *testing.T) {
	t.Setenv("MAX_CONN_OVERALL", "5")
	t.Setenv("MAX_CONN_SERVER", "4")
	t.Setenv("MAX_CONN_CLIENT", "4")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error when server+client exceeds overall")
	}
}

func TestFromEnvRejectsUnparsable(t *testing.T) {
	t.Setenv("MAX_CONN_OVERALL", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for unparsable int")
	}
}
