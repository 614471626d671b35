package query

import (
	"strings"

	"github.com/myk-org/hooktrail/internal/model"
)

// Matches reports whether a record satisfies every predicate in the
// filter. Exact-match fields are evaluated before the free-text search:
// they are cheap comparisons and usually the most selective, so the
// substring work only runs for records that survive them. The live
// subscription broker reuses this evaluator for its per-append checks.
func Matches(f *model.Filter, rec *model.LogRecord) bool {
	if f.HookID != "" && rec.HookID != f.HookID {
		return false
	}
	if f.PRNumber != 0 && rec.PRNumber != f.PRNumber {
		return false
	}
	if f.Repository != "" && rec.Repository != f.Repository {
		return false
	}
	if f.EventType != "" && rec.EventType != f.EventType {
		return false
	}
	if f.GithubUser != "" && rec.GithubUser != f.GithubUser {
		return false
	}
	if f.Level != "" && string(rec.Level) != f.Level {
		return false
	}

	if f.StartTime != nil && rec.Timestamp.Std().Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && rec.Timestamp.Std().After(*f.EndTime) {
		return false
	}

	// Free text last: an AND of case-insensitive substrings over the
	// message, not a query language.
	if f.Search != "" {
		msg := strings.ToLower(rec.Message)
		for _, term := range strings.Fields(strings.ToLower(f.Search)) {
			if !strings.Contains(msg, term) {
				return false
			}
		}
	}
	return true
}
