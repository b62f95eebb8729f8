package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONResult is the envelope for JSON output from any nsgctl command.
type JSONResult struct {
	Status string `json:"status"`          // "ok" or "error"
	Data   any    `json:"data,omitempty"`  // command-specific payload
	Error  string `json:"error,omitempty"` // error message, if any
}

// jsonOut is where JSON envelopes are written; stdout unless redirected.
var jsonOut io.Writer = os.Stdout

// SetJSONWriter redirects JSON output. Passing nil restores stdout.
func SetJSONWriter(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	jsonOut = w
}

// JSON writes a successful result envelope.
func JSON(data any) {
	writeJSON(JSONResult{Status: "ok", Data: data})
}

// JSONError writes an error envelope.
func JSONError(err error) {
	writeJSON(JSONResult{Status: "error", Error: err.Error()})
}

func writeJSON(result JSONResult) {
	enc := json.NewEncoder(jsonOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding JSON output: %v\n", err)
	}
}
