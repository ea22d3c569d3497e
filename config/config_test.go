package config

import "testing"

func TestParseAppliesDefaults(t *testing.T) {
	doc := `
mac_key = "` + zeroKeyHex + `"
window_duration_s = 60
window_capacity = 10
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.MACKey) != macKeyBytes {
		t.Fatalf("MACKey length = %d, want %d", len(cfg.MACKey), macKeyBytes)
	}
	if cfg.MaxLogMessageBytes != DefaultMaxLogMessageBytes {
		t.Fatalf("MaxLogMessageBytes = %d, want default %d", cfg.MaxLogMessageBytes, DefaultMaxLogMessageBytes)
	}
	if cfg.BundleMaxBytes != DefaultBundleMaxBytes {
		t.Fatalf("BundleMaxBytes = %d, want default %d", cfg.BundleMaxBytes, DefaultBundleMaxBytes)
	}
	if cfg.ShardCount != DefaultShardCount {
		t.Fatalf("ShardCount = %d, want default %d", cfg.ShardCount, DefaultShardCount)
	}
	if cfg.WindowDuration != 60 || cfg.WindowCapacity != 10 {
		t.Fatalf("window fields did not round-trip: %+v", cfg)
	}
}

func TestParseHonorsExplicitOverrides(t *testing.T) {
	doc := `
mac_key = "` + zeroKeyHex + `"
window_duration_s = 60
window_capacity = 10
max_log_message_bytes = 128
bundle_max_bytes = 4096
shard_count = 8
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MaxLogMessageBytes != 128 || cfg.BundleMaxBytes != 4096 || cfg.ShardCount != 8 {
		t.Fatalf("overrides did not take effect: %+v", cfg)
	}
}

func TestParseRejectsBadMACKey(t *testing.T) {
	doc := `
mac_key = "not-hex"
window_duration_s = 60
window_capacity = 10
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatalf("expected error for non-hex mac_key")
	}
}

func TestParseRejectsShortMACKey(t *testing.T) {
	doc := `
mac_key = "aabbcc"
window_duration_s = 60
window_capacity = 10
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatalf("expected error for undersized mac_key")
	}
}

func TestParseRejectsNonPositiveWindowFields(t *testing.T) {
	cases := []string{
		`mac_key = "` + zeroKeyHex + `"
window_duration_s = 0
window_capacity = 10
`,
		`mac_key = "` + zeroKeyHex + `"
window_duration_s = 60
window_capacity = 0
`,
	}
	for i, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

// zeroKeyHex is 32 zero bytes hex-encoded (64 hex characters), a valid
// mac_key for tests that don't care about its actual value.
const zeroKeyHex = "0000000000000000000000000000000000000000000000000000000000000000"
