// nsgctl – Azure NSG rule reconciler
// Makes one named security rule consistent across every network security
// group of a subscription: report, update in place, or create where missing.
package main

import (
	"os"
	"time"

	"github.com/asukhov/nsgctl/cmd"
	"github.com/asukhov/nsgctl/internal/audit"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/output"
	_ "github.com/asukhov/nsgctl/schemas"
)

func main() {
	start := time.Now()
	if err := cmd.Execute(); err != nil {
		code := exitcode.Of(err)
		event := audit.BuildEvent(os.Args, "failure", code, time.Since(start))
		_ = audit.Write(event)
		output.PrintError(err)
		os.Exit(code)
	}

	event := audit.BuildEvent(os.Args, "success", exitcode.OK, time.Since(start))
	_ = audit.Write(event)
}
