// Package doctor implements prerequisite checks for nsgctl.
//
// It validates that the Azure CLI is installed at a supported version, that
// a credential is available (an az login or service principal environment
// variables), and that the selected subscription can read network security
// groups.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Status represents the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// CheckResult is the outcome of running a single prerequisite check.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Check defines a single prerequisite check.
type Check struct {
	Name     string
	Category string // "tool", "auth", "azure"
	Critical bool   // if true, failure => exit code 1
	Run      func(ctx context.Context, exec CmdExecutor) CheckResult
}

// CmdExecutor abstracts command execution for testability.
type CmdExecutor interface {
	// Run executes a command and returns combined stdout+stderr output.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// realExecutor runs commands via os/exec.
type realExecutor struct{}

func (r *realExecutor) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// NewRealExecutor returns a CmdExecutor backed by os/exec.
func NewRealExecutor() CmdExecutor {
	return &realExecutor{}
}

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// Summary holds the aggregated results of all checks.
type Summary struct {
	Results    []CheckResult `json:"results"`
	TotalPass  int           `json:"totalPass"`
	TotalFail  int           `json:"totalFail"`
	TotalWarn  int           `json:"totalWarn"`
	TotalSkip  int           `json:"totalSkip"`
	HasFailure bool          `json:"hasFailure"`
}

// RunAll executes all checks and returns a summary. subscription scopes the
// NSG read check; empty uses the az CLI default.
func RunAll(ctx context.Context, executor CmdExecutor, subscription string) Summary {
	checks := AllChecks(subscription)
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		r := c.Run(ctx, executor)
		r.Name = c.Name
		r.Category = c.Category
		results = append(results, r)
	}
	return buildSummary(results, checks)
}

func buildSummary(results []CheckResult, checks []Check) Summary {
	s := Summary{Results: results}
	for i, r := range results {
		switch r.Status {
		case StatusPass:
			s.TotalPass++
		case StatusFail:
			s.TotalFail++
			if checks[i].Critical {
				s.HasFailure = true
			}
		case StatusWarn:
			s.TotalWarn++
		case StatusSkip:
			s.TotalSkip++
		}
	}
	return s
}

// AllChecks returns the ordered list of prerequisite checks.
func AllChecks(subscription string) []Check {
	return []Check{
		checkAzCLI(),
		checkAzSession(),
		checkCredentialEnv(),
		checkResourceProvider("Microsoft.Network", subscription),
		checkNSGRead(subscription),
	}
}

func withSubscription(subscription string, args ...string) []string {
	if s := strings.TrimSpace(subscription); s != "" {
		args = append(args, "--subscription", s)
	}
	return args
}

// --- Tool version checks ---

func checkAzCLI() Check {
	return Check{
		Name:     "az-cli",
		Category: "tool",
		Critical: true,
		Run: func(ctx context.Context, ex CmdExecutor) CheckResult {
			return checkToolVersion(ctx, ex, "az", []string{"version", "--output", "tsv"}, `(\d+\.\d+\.\d+)`, "2.50.0",
				"Install Azure CLI >= 2.50.0: https://learn.microsoft.com/cli/azure/install-azure-cli")
		},
	}
}

// --- Credential checks ---

func checkAzSession() Check {
	return Check{
		Name:     "az-session",
		Category: "auth",
		Critical: true,
		Run: func(ctx context.Context, ex CmdExecutor) CheckResult {
			out, err := ex.Run(ctx, "az", "account", "show", "--output", "json")
			if err != nil {
				return CheckResult{
					Status:  StatusFail,
					Message: "No active Azure session",
					Fix:     "Run: az login --tenant <your-tenant-id>",
				}
			}

			tenantID := extractJSONField(out, "tenantId")
			subID := extractJSONField(out, "id")
			subName := extractJSONField(out, "name")

			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("Logged in: tenant %s, default subscription %s (%s)", tenantID, subID, subName),
			}
		},
	}
}

// servicePrincipalEnv lists the variables read by the environment credential.
var servicePrincipalEnv = []string{"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET"}

func checkCredentialEnv() Check {
	return Check{
		Name:     "credential-env",
		Category: "auth",
		Critical: false,
		Run: func(context.Context, CmdExecutor) CheckResult {
			var set, missing []string
			for _, name := range servicePrincipalEnv {
				if v, ok := lookupEnv(name); ok && strings.TrimSpace(v) != "" {
					set = append(set, name)
				} else {
					missing = append(missing, name)
				}
			}
			switch {
			case len(set) == 0:
				return CheckResult{
					Status:  StatusSkip,
					Message: "No service principal variables set; the az CLI login will be used",
				}
			case len(missing) == 0:
				return CheckResult{
					Status:  StatusPass,
					Message: "Service principal credentials found in the environment",
				}
			case len(missing) == 1 && missing[0] == "AZURE_CLIENT_SECRET":
				return CheckResult{
					Status:  StatusPass,
					Message: "AZURE_CLIENT_ID and AZURE_TENANT_ID set (workload identity or certificate credential)",
				}
			default:
				return CheckResult{
					Status:  StatusWarn,
					Message: fmt.Sprintf("Incomplete service principal environment: %s not set", strings.Join(missing, ", ")),
					Fix:     "Set all of " + strings.Join(servicePrincipalEnv, ", ") + ", or unset them to use az login",
				}
			}
		},
	}
}

// --- Azure permission checks ---

func checkResourceProvider(provider, subscription string) Check {
	name := "provider-" + strings.ToLower(strings.TrimPrefix(provider, "Microsoft."))
	return Check{
		Name:     name,
		Category: "azure",
		Critical: true,
		Run: func(ctx context.Context, ex CmdExecutor) CheckResult {
			args := withSubscription(subscription, "provider", "show", "-n", provider, "--query", "registrationState", "-o", "tsv")
			out, err := ex.Run(ctx, "az", args...)
			if err != nil {
				return CheckResult{
					Status:  StatusFail,
					Message: fmt.Sprintf("Cannot query provider %s", provider),
					Fix:     fmt.Sprintf("Run: az provider register -n %s", provider),
				}
			}
			state := strings.TrimSpace(out)
			if strings.EqualFold(state, "Registered") {
				return CheckResult{
					Status:  StatusPass,
					Message: fmt.Sprintf("%s is registered", provider),
				}
			}
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s is %s (not registered)", provider, state),
				Fix:     fmt.Sprintf("Run: az provider register -n %s", provider),
			}
		},
	}
}

func checkNSGRead(subscription string) Check {
	return Check{
		Name:     "nsg-read",
		Category: "azure",
		Critical: true,
		Run: func(ctx context.Context, ex CmdExecutor) CheckResult {
			args := withSubscription(subscription, "network", "nsg", "list", "--query", "length(@)", "-o", "tsv")
			out, err := ex.Run(ctx, "az", args...)
			if err != nil {
				return CheckResult{
					Status:  StatusFail,
					Message: "Cannot list network security groups",
					Fix:     "Ensure your identity has Network Contributor (or Reader for report-only runs) on the subscription",
				}
			}
			n, err := strconv.Atoi(strings.TrimSpace(out))
			if err != nil {
				return CheckResult{
					Status:  StatusWarn,
					Message: "Listed network security groups but could not parse the count",
				}
			}
			if n == 0 {
				return CheckResult{
					Status:  StatusWarn,
					Message: "No network security groups in the subscription; reconcile will stop with an error",
					Fix:     "Pass --subscription to target another subscription",
				}
			}
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("%d network security group(s) readable", n),
			}
		},
	}
}

// --- Helpers ---

// checkToolVersion runs a command, extracts version via regex, and compares to min version.
func checkToolVersion(ctx context.Context, ex CmdExecutor, tool string, args []string, pattern, minVersion, fix string) CheckResult {
	out, err := ex.Run(ctx, tool, args...)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found or not in PATH", tool),
			Fix:     fix,
		}
	}

	re := regexp.MustCompile(pattern)
	matches := re.FindStringSubmatch(out)
	if len(matches) < 2 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s found but could not parse version from output", tool),
		}
	}

	version := matches[1]
	if !semverGTE(version, minVersion) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s %s found, but >= %s required", tool, version, minVersion),
			Fix:     fix,
		}
	}

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s %s", tool, version),
	}
}

// semverGTE returns true if version >= min (simple major.minor.patch comparison).
func semverGTE(version, min string) bool {
	v := parseSemver(version)
	m := parseSemver(min)
	if v[0] != m[0] {
		return v[0] > m[0]
	}
	if v[1] != m[1] {
		return v[1] > m[1]
	}
	return v[2] >= m[2]
}

func parseSemver(s string) [3]int {
	parts := strings.SplitN(s, ".", 3)
	var result [3]int
	for i := 0; i < 3 && i < len(parts); i++ {
		numStr := strings.SplitN(parts[i], "-", 2)[0]
		numStr = strings.SplitN(numStr, "+", 2)[0]
		n, _ := strconv.Atoi(numStr)
		result[i] = n
	}
	return result
}

// extractJSONField does a simple regex extraction for "field": "value" from
// the first match in JSON output.
func extractJSONField(jsonStr, field string) string {
	re := regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*"([^"]*)"`, regexp.QuoteMeta(field)))
	m := re.FindStringSubmatch(jsonStr)
	if len(m) >= 2 {
		return m[1]
	}
	return "unknown"
}
