package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/myk-org/hooktrail/internal/model"
)

func TestMatches(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := model.LogRecord{
		Timestamp:  model.NewTime(ts),
		Level:      model.LevelError,
		Message:    "Step assign_reviewers failed: no eligible reviewers",
		HookID:     "hook-1",
		EventType:  "pull_request",
		Repository: "octo/widgets",
		PRNumber:   42,
		GithubUser: "octocat",
	}

	before := ts.Add(-time.Hour)
	after := ts.Add(time.Hour)

	tests := []struct {
		name   string
		filter model.Filter
		want   bool
	}{
		{"empty filter matches everything", model.Filter{}, true},
		{"hook id match", model.Filter{HookID: "hook-1"}, true},
		{"hook id mismatch", model.Filter{HookID: "hook-2"}, false},
		{"pr number match", model.Filter{PRNumber: 42}, true},
		{"pr number mismatch", model.Filter{PRNumber: 7}, false},
		{"repository match", model.Filter{Repository: "octo/widgets"}, true},
		{"repository mismatch", model.Filter{Repository: "octo/gadgets"}, false},
		{"event type match", model.Filter{EventType: "pull_request"}, true},
		{"github user mismatch", model.Filter{GithubUser: "hubot"}, false},
		{"level match", model.Filter{Level: "ERROR"}, true},
		{"level mismatch", model.Filter{Level: "INFO"}, false},
		{"search single term", model.Filter{Search: "reviewers"}, true},
		{"search case insensitive", model.Filter{Search: "ASSIGN_REVIEWERS"}, true},
		{"search all terms must match", model.Filter{Search: "failed reviewers"}, true},
		{"search one missing term fails", model.Filter{Search: "failed success"}, false},
		{"start time inclusive window", model.Filter{StartTime: &before}, true},
		{"start time after record", model.Filter{StartTime: &after}, false},
		{"end time before record", model.Filter{EndTime: &before}, false},
		{"combined predicates", model.Filter{HookID: "hook-1", Level: "ERROR", Search: "failed"}, true},
		{"combined with one mismatch", model.Filter{HookID: "hook-1", Level: "INFO", Search: "failed"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(&tt.filter, &rec))
		})
	}
}
