package reconcile

import (
	"fmt"
	"strings"
	"time"

	"boardsync/internal/store"
)

type Strategy string

const (
	MostRecent     Strategy = "most_recent"
	MostProgressed Strategy = "most_progressed"
)

// ParseStrategy maps a configured name to a Strategy. Blank selects
// MostProgressed.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", MostProgressed:
		return MostProgressed, nil
	case MostRecent:
		return MostRecent, nil
	}
	return "", fmt.Errorf("unknown resolution strategy %q", name)
}

// Resolve picks the version of a task to keep when existing and incoming
// share an identifier. It performs no I/O and is deterministic.
//
// Recency orders records by (updated date or else modification time, then
// modification time), with a missing time older than any present one. The
// order is total, so folding any number of versions gives the same winner in
// every arrival order. Only records equal on every compared axis depend on
// argument order: the existing record wins those ties.
func Resolve(existing, incoming store.Task, statuses []string, strategy Strategy) store.Task {
	if strategy == MostRecent {
		if c := compareRecency(existing, incoming); c != 0 {
			return pick(c, existing, incoming)
		}
	}

	existingIdx := statusIndex(existing.Status, statuses)
	incomingIdx := statusIndex(incoming.Status, statuses)
	switch {
	case incomingIdx > existingIdx:
		return incoming
	case incomingIdx < existingIdx:
		return existing
	}
	return pick(compareRecency(existing, incoming), existing, incoming)
}

// statusIndex returns the position of status in statuses. Unrecognised
// statuses rank after every configured one, so a record carrying a status
// the board does not know about is treated as the most progressed.
func statusIndex(status string, statuses []string) int {
	status = strings.TrimSpace(status)
	for i, candidate := range statuses {
		if strings.EqualFold(strings.TrimSpace(candidate), status) {
			return i
		}
	}
	return len(statuses)
}

func lastTouched(task store.Task) *time.Time {
	if task.UpdatedDate != nil {
		return task.UpdatedDate
	}
	return task.ModTime
}

// compareRecency returns -1 when a is more recent, 1 when b is.
func compareRecency(a, b store.Task) int {
	if c := compareStamps(lastTouched(a), lastTouched(b)); c != 0 {
		return c
	}
	return compareStamps(a.ModTime, b.ModTime)
}

// compareStamps returns -1 when a is later, 1 when b is later and 0 when they
// are equal or both absent. An absent stamp is older than a present one.
func compareStamps(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.After(*b):
		return -1
	case b.After(*a):
		return 1
	}
	return 0
}

func pick(c int, existing, incoming store.Task) store.Task {
	if c > 0 {
		return incoming
	}
	return existing
}
