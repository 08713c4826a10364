// Package featureflags evaluates rollout flags per principal.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"agora/internal/models"
)

// InvalidationStream gates the websocket invalidation feed.
const InvalidationStream = "invalidation_stream"

// rollout is the share of principals a flag is on for, 0 through 100.
type rollout int

func parseRollout(v string) (rollout, bool) {
	switch v {
	case "on", "true", "1":
		return 100, true
	case "off", "false", "0":
		return 0, true
	}
	pct, ok := strings.CutSuffix(v, "%")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		return 0, false
	}
	return rollout(min(max(n, 0), 100)), true
}

func (r rollout) String() string {
	switch r {
	case 100:
		return "on"
	case 0:
		return "off"
	default:
		return strconv.Itoa(int(r)) + "%"
	}
}

// Manager holds flags parsed from a comma-separated key=value list such as
// "invalidation_stream=on,threaded_view=25%,legacy_ui=off".
// Values are on/true/1, off/false/0, or N% for a deterministic per-principal rollout.
type Manager struct {
	flags    map[string]rollout
	rejected []string
}

// NewManager parses raw. Entries that do not parse are kept in Rejected.
func NewManager(raw string) *Manager {
	m := &Manager{flags: make(map[string]rollout)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" {
			m.rejected = append(m.rejected, entry)
			continue
		}
		r, ok := parseRollout(value)
		if !ok {
			m.rejected = append(m.rejected, entry)
			continue
		}
		m.flags[name] = r
	}
	return m
}

// Rejected lists entries NewManager could not parse, in input order.
func (m *Manager) Rejected() []string {
	if m == nil {
		return nil
	}
	return m.rejected
}

// Enabled reports whether name is on for principal. Unknown flags are off.
// Partial rollouts are off for the zero principal.
func (m *Manager) Enabled(name string, principal models.Principal) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r, ok := m.flags[name]
	switch {
	case !ok || r == 0:
		return false
	case r == 100:
		return true
	case !principal.Valid():
		return false
	}
	return bucket(name, principal) < int(r)
}

// Snapshot evaluates every configured flag for principal.
func (m *Manager) Snapshot(principal models.Principal) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, principal)
	}
	return out
}

// String renders the parsed flags in canonical, sorted form.
func (m *Manager) String() string {
	if m == nil {
		return ""
	}
	names := make([]string, 0, len(m.flags))
	for name := range m.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%s", name, m.flags[name])
	}
	return strings.Join(parts, ",")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Accounts and sessions hash into separate buckets even when their refs collide.
func bucket(name string, principal models.Principal) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + string(principal.Kind) + ":" + principal.Ref))
	return int(h.Sum32() % 100)
}
