// Package audit appends one JSONL event per nsgctl invocation to
// ~/.nsgctl/audit.log and reads them back for `nsgctl history`.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DisableEnv disables the audit log when set to any non-empty value.
const DisableEnv = "NSGCTL_NO_AUDIT"

type Event struct {
	Timestamp     string            `json:"timestamp"`
	Operation     string            `json:"operation"`
	Subscription  string            `json:"subscription,omitempty"`
	Tenant        string            `json:"tenant,omitempty"`
	Rule          string            `json:"rule,omitempty"`
	Args          []string          `json:"args"`
	Result        string            `json:"result"`
	ExitCode      int               `json:"exitCode"`
	DurationMs    int64             `json:"durationMs"`
	CorrelationID string            `json:"correlationId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

var (
	pendingMu sync.Mutex
	pending   map[string]string
)

// Annotate records a metadata value for the event built at the end of the
// current invocation. The last value for a key wins.
func Annotate(key, value string) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	if pending == nil {
		pending = map[string]string{}
	}
	pending[key] = value
}

func takePending() map[string]string {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	meta := pending
	pending = nil
	return meta
}

// BuildEvent assembles the event for one invocation. Metadata recorded with
// Annotate is attached and cleared; annotated subscription, tenant and rule
// values take precedence over the ones inferred from args.
func BuildEvent(args []string, result string, exitCode int, duration time.Duration) Event {
	op, sub, tenant, rule := inferFromArgs(args)
	meta := takePending()
	if v := meta["subscription"]; v != "" {
		sub = v
		delete(meta, "subscription")
	}
	if v := meta["tenant"]; v != "" {
		tenant = v
		delete(meta, "tenant")
	}
	if v := meta["rule"]; v != "" {
		rule = v
		delete(meta, "rule")
	}
	if len(meta) == 0 {
		meta = nil
	}
	return Event{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Operation:     op,
		Subscription:  sub,
		Tenant:        tenant,
		Rule:          rule,
		Args:          args,
		Result:        result,
		ExitCode:      exitCode,
		DurationMs:    duration.Milliseconds(),
		CorrelationID: fmt.Sprintf("%d", time.Now().UTC().UnixNano()),
		Metadata:      meta,
	}
}

// Write appends event to the user audit log unless DisableEnv is set.
func Write(event Event) error {
	if os.Getenv(DisableEnv) != "" {
		return nil
	}
	return writeUserAudit(event)
}

// ReadUserAudit returns every parseable event in the user audit log, oldest
// first. A missing log yields no events.
func ReadUserAudit() ([]Event, error) {
	path, err := userAuditPath()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var out []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err == nil {
			out = append(out, event)
		}
	}
	return out, scanner.Err()
}

func (e Event) MetadataValue(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// MetadataKeys returns the metadata keys in sorted order.
func (e Event) MetadataKeys() []string {
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeUserAudit(event Event) error {
	path, err := userAuditPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func userAuditPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nsgctl", "audit.log"), nil
}

// inferFromArgs extracts the subcommand and the targeting flags from the raw
// process arguments. Both `--flag value` and `--flag=value` are recognised.
func inferFromArgs(args []string) (operation, subscription, tenant, rule string) {
	operation = "root"
	for i := 1; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			continue
		}
		operation = args[i]
		break
	}
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		if !hasValue {
			if i+1 >= len(args) {
				continue
			}
			value = args[i+1]
		}
		switch name {
		case "--subscription":
			subscription = value
		case "--tenant-id":
			tenant = value
		case "--name":
			rule = value
		}
	}
	return
}
