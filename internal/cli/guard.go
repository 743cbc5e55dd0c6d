package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Environment variables gating destructive operations (recovery resume
// and recovery abort, the only CLI verbs that mutate a WAL based on
// operator judgment rather than replaying it).
const (
	envAuthToken   = "INTENTUSNET_AUTH_TOKEN"
	envMode        = "INTENTUSNET_MODE"
	envAutoConfirm = "INTENTUSNET_AUTO_CONFIRM"
)

const (
	modeReadWrite = "read_write"
	modeReadOnly  = "read_only"
)

// requireDestructiveOpsAllowed enforces INTENTUSNET_MODE and
// INTENTUSNET_AUTH_TOKEN for an operation that mutates persisted
// state: read_only mode always refuses, and once an auth token is
// configured it must be presented back unchanged.
func requireDestructiveOpsAllowed(presentedToken string) error {
	mode := os.Getenv(envMode)
	if mode == modeReadOnly {
		return NewExitError(ExitUsage, fmt.Sprintf("refusing: %s=%s forbids destructive operations", envMode, mode))
	}
	if mode != "" && mode != modeReadWrite {
		return NewExitError(ExitUsage, fmt.Sprintf("invalid %s=%q: must be %q or %q", envMode, mode, modeReadWrite, modeReadOnly))
	}

	if want := os.Getenv(envAuthToken); want != "" {
		if presentedToken == "" || presentedToken != want {
			return NewExitError(ExitUsage, fmt.Sprintf("refusing: %s is set but a matching --token was not provided", envAuthToken))
		}
	}
	return nil
}

// confirmDestructive prompts the operator unless
// INTENTUSNET_AUTO_CONFIRM=1 is set, in which case it proceeds
// silently — the same escape hatch scripted recovery runs need.
func confirmDestructive(prompt string) (bool, error) {
	if os.Getenv(envAutoConfirm) == "1" {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
