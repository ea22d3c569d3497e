// Command version_verifier runs diffengine.InvertibilityStressTest,
// the apply/revert cycle stress test, and reports the outcome as one
// JSON line on stderr.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/diffengine"
)

type report struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

func main() {
	if err := diffengine.InvertibilityStressTest(); err != nil {
		emit(report{Result: "Invalid", Reason: err.Error()})
		os.Exit(1)
	}
	emit(report{Result: "Valid"})
}

func emit(r report) {
	encoded, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"result":"Invalid","reason":"internal: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(encoded))
}
