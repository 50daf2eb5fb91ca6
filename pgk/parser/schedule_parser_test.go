package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain duration", "5s", true},
		{"every descriptor", "@every 10s", true},
		{"standard cron", "*/15 14 * * *", true},
		{"daily descriptor", "@daily", true},
		{"empty", "  ", false},
		{"sub-second duration", "500ms", false},
		{"garbage", "not a schedule", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			schedule, err := ParseSchedule(test.input)
			if test.valid {
				require.NoError(t, err)
				assert.NotNil(t, schedule)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEverySchedule_Next(t *testing.T) {
	schedule, err := EverySchedule(5 * time.Second)
	require.NoError(t, err)

	from := time.Date(2025, 6, 21, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Second), schedule.Next(from))
}

func TestCalculateNextRun(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		from    time.Time
		expects time.Time
	}{
		{
			name:    "next 15-min mark in same hour",
			expr:    "*/15 14 * * *",
			from:    time.Date(2025, 6, 21, 14, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 14, 15, 0, 0, time.UTC),
		},
		{
			name:    "next year",
			expr:    "0 0 1 1 *",
			from:    time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
			expects: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "next weekday",
			expr:    "0 9 * * 1",
			from:    time.Date(2025, 6, 20, 8, 59, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "daily descriptor",
			expr:    "@daily",
			from:    time.Date(2025, 6, 20, 8, 59, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "invalid cron fallback",
			expr:    "invalid expression",
			from:    time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 11, 0, 0, 0, time.UTC),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			next := CalculateNextRun(test.expr, test.from)
			if !next.Equal(test.expects) {
				t.Errorf("CalculateNextRun(%q, %v) = %v; want %v", test.expr, test.from, next, test.expects)
			}
		})
	}
}
