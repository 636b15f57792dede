package warikan

import (
	"sort"
	"strings"

	"github.com/susu3304/warikanbot/internal/settlement"
)

func names(members []settlement.Person) map[string]string {
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.ID] = m.Name
	}
	return out
}

func label(id string, names map[string]string) string {
	if isSnowflake(id) {
		return "<@" + id + ">"
	}
	if n := names[id]; n != "" {
		return n
	}
	return id
}

// isSnowflake reports whether id looks like a Discord user ID.
func isSnowflake(id string) bool {
	if len(id) < 15 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedCodes(r settlement.Rates) []string {
	codes := make([]string, 0, len(r))
	for c := range r {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
