package types

import (
	"dagsync/internal/state"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobFilter_Matches(t *testing.T) {
	etl := &JobRecord{
		JobID:       "etl_daily",
		Description: "Loads the warehouse",
		Owners:      []string{"data-eng"},
		Tags:        []string{"ETL", "nightly"},
		IsFavorite:  true,
		LatestRun:   &RunRef{RunID: "r1", State: state.StatusRunning},
	}
	paused := &JobRecord{JobID: "cleanup", IsPaused: true, Owners: []string{"ops"}}

	tests := []struct {
		name   string
		filter JobFilter
		job    *JobRecord
		want   bool
	}{
		{"empty filter matches everything", JobFilter{}, paused, true},
		{"nil job", JobFilter{}, nil, false},
		{"search on id", JobFilter{Search: "ETL_"}, etl, true},
		{"search on description", JobFilter{Search: "warehouse"}, etl, true},
		{"search on tag", JobFilter{Search: "night"}, etl, true},
		{"search miss", JobFilter{Search: "billing"}, etl, false},
		{"blank search ignored", JobFilter{Search: "   "}, paused, true},
		{"owner exact fold", JobFilter{Owner: "DATA-ENG"}, etl, true},
		{"owner partial is not a match", JobFilter{Owner: "data"}, etl, false},
		{"tag", JobFilter{Tag: "etl"}, etl, true},
		{"status active excludes paused", JobFilter{Status: FilterActive}, paused, false},
		{"status paused", JobFilter{Status: FilterPaused}, paused, true},
		{"status paused excludes active", JobFilter{Status: FilterPaused}, etl, false},
		{"status running", JobFilter{Status: FilterRunning}, etl, true},
		{"status running needs a run", JobFilter{Status: FilterRunning}, paused, false},
		{"favorites only", JobFilter{FavoritesOnly: true}, paused, false},
		{"combined", JobFilter{FavoritesOnly: true, Tag: "nightly", Search: "etl"}, etl, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.job))
		})
	}
}
