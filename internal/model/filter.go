package model

import "time"

// Filter describes one query or live-subscription predicate set.
// All fields are optional; the zero value matches every record.
// Time bounds that fail to parse upstream are left nil (treated as
// absent), never rejected.
type Filter struct {
	HookID     string `json:"hook_id,omitempty" form:"hook_id"`
	PRNumber   int    `json:"pr_number,omitempty" form:"pr_number"`
	Repository string `json:"repository,omitempty" form:"repository"`
	EventType  string `json:"event_type,omitempty" form:"event_type"`
	GithubUser string `json:"github_user,omitempty" form:"github_user"`
	Level      string `json:"level,omitempty" form:"level"`

	// Search is free text: all whitespace-separated terms must appear in
	// the message, case-insensitively. An AND of substrings, not a query
	// language.
	Search string `json:"search,omitempty" form:"search"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Limit  int `json:"limit,omitempty" form:"limit"`
	Offset int `json:"offset,omitempty" form:"offset"`
}

// IsZero reports whether the filter carries no predicates at all
// (pagination aside).
func (f *Filter) IsZero() bool {
	return f.HookID == "" && f.PRNumber == 0 && f.Repository == "" &&
		f.EventType == "" && f.GithubUser == "" && f.Level == "" &&
		f.Search == "" && f.StartTime == nil && f.EndTime == nil
}
