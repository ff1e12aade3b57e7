package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	IdentifierPrefix = "TASK"

	// FirstTaskIdentifier is allocated when no task exists yet.
	FirstTaskIdentifier = "TASK-0001"
)

// NextTaskIdentifier returns the identifier following prev. The suffix is
// re-padded to four digits and keeps growing past TASK-9999.
func NextTaskIdentifier(prev string) (string, error) {
	_, suffix, ok := strings.Cut(prev, "-")
	if !ok {
		return "", fmt.Errorf("malformed task identifier %q", prev)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return "", fmt.Errorf("malformed task identifier %q", prev)
	}
	return FormatTaskIdentifier(n + 1), nil
}

// FormatTaskIdentifier renders n as TASK-%04d.
func FormatTaskIdentifier(n int) string {
	return fmt.Sprintf("%s-%04d", IdentifierPrefix, n)
}

// AllocateTaskIdentifier computes the identifier for a new task from the most
// recently created one, if any.
func AllocateTaskIdentifier(last string, found bool) (string, error) {
	if !found {
		return FirstTaskIdentifier, nil
	}
	return NextTaskIdentifier(last)
}
