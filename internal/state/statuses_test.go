package state

import (
	"testing"
)

func TestRunState_String(t *testing.T) {
	tests := []struct {
		name     string
		status   RunState
		expected string
	}{
		{name: "Queued status", status: StatusQueued, expected: "queued"},
		{name: "Running status", status: StatusRunning, expected: "running"},
		{name: "Success status", status: StatusSuccess, expected: "success"},
		{name: "Failed status", status: StatusFailed, expected: "failed"},
		{name: "Unknown status", status: StatusUnknown, expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.String()
			if result != tt.expected {
				t.Errorf("String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRunState_IsActive(t *testing.T) {
	tests := []struct {
		status   RunState
		active   bool
		terminal bool
	}{
		{status: StatusQueued, active: true},
		{status: StatusRunning, active: true},
		{status: StatusSuccess, terminal: true},
		{status: StatusFailed, terminal: true},
		{status: StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestParseRunState(t *testing.T) {
	tests := []struct {
		raw      string
		expected RunState
	}{
		{raw: "queued", expected: StatusQueued},
		{raw: " RUNNING ", expected: StatusRunning},
		{raw: "success", expected: StatusSuccess},
		{raw: "failed", expected: StatusFailed},
		{raw: "up_for_retry", expected: StatusUnknown},
		{raw: "", expected: StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseRunState(tt.raw); got != tt.expected {
				t.Errorf("ParseRunState(%q) = %v, want %v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     RunState
		to       RunState
		expected bool
	}{
		{name: "Valid: Queued to Running", from: StatusQueued, to: StatusRunning, expected: true},
		{name: "Valid: Running to Success", from: StatusRunning, to: StatusSuccess, expected: true},
		{name: "Valid: Running to Failed", from: StatusRunning, to: StatusFailed, expected: true},
		{name: "Valid: Queued to Failed", from: StatusQueued, to: StatusFailed, expected: true},
		{name: "Valid: Success to Unknown", from: StatusSuccess, to: StatusUnknown, expected: true},
		{name: "Valid: same state", from: StatusRunning, to: StatusRunning, expected: true},
		{name: "Invalid: Success to Running", from: StatusSuccess, to: StatusRunning, expected: false},
		{name: "Invalid: Failed to Queued", from: StatusFailed, to: StatusQueued, expected: false},
		{name: "Invalid: Running to Queued", from: StatusRunning, to: StatusQueued, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}
