// Command verify_bundle checks an incident bundle archive offline. It
// is a thin wrapper over bundle.Verify and carries no logic beyond
// flag parsing and result formatting.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/bundle"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/config"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

type report struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

func main() {
	var keyHex, configPath string
	flag.StringVar(&keyHex, "key", "", "32-byte hex MAC key (overrides -config's mac_key)")
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.Parse()

	if flag.NArg() != 1 {
		emit(report{Result: "Invalid", Reason: "usage: verify_bundle <path> [-key <hex>] [-config <path>]"})
		os.Exit(1)
	}

	key, maxBytes, err := resolveKeyAndBudget(keyHex, configPath)
	if err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}

	archiveBytes, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}

	if err := bundle.Verify(archiveBytes, key, logchain.DefaultMaxMessageBytes, maxBytes); err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}
	emit(report{Result: "Valid"})
}

func resolveKeyAndBudget(keyHex, configPath string) ([]byte, int, error) {
	maxBytes := config.DefaultBundleMaxBytes
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, 0, err
		}
		if keyHex == "" {
			return cfg.MACKey, int(cfg.BundleMaxBytes), nil
		}
		maxBytes = int(cfg.BundleMaxBytes)
	}
	if keyHex == "" {
		return nil, 0, fmt.Errorf("no mac key given: pass -key or -config")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, 0, fmt.Errorf("-key is not valid hex: %w", err)
	}
	return key, maxBytes, nil
}

func emit(r report) {
	encoded, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"result":"Invalid","reason":"internal: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(encoded))
}
