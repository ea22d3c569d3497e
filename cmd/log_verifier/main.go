// Command log_verifier runs logchain.VerifyChain against a FileStore
// directory and prints the first failing index, if any.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

type report struct {
	Result string `json:"result"`
	Index  *int64 `json:"index,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func main() {
	var keyHex string
	flag.StringVar(&keyHex, "key", "", "32-byte hex MAC key")
	flag.Parse()

	if flag.NArg() != 1 || keyHex == "" {
		emit(report{Result: "Invalid", Reason: "usage: log_verifier <path> --key <hex>"})
		os.Exit(1)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		emit(report{Result: "Invalid", Reason: fmt.Sprintf("--key is not valid hex: %v", err)})
		os.Exit(1)
	}

	store, err := logchain.OpenFileStore(flag.Arg(0), 0)
	if err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	entries, cancel, err := store.Iter(0)
	if err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}
	defer cancel()

	var all []logchain.Entry
	for e := range entries {
		all = append(all, e)
	}

	result := logchain.VerifyChain(all, key)
	if result.Valid() {
		emit(report{Result: "Valid"})
		return
	}
	index := int64(result.Err.Index)
	emit(report{Result: result.Err.Kind.String(), Index: &index, Reason: result.Err.Error()})
	os.Exit(1)
}

func emit(r report) {
	encoded, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"result":"Invalid","reason":"internal: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(encoded))
}
