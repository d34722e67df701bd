package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestValidDeploymentTransition tests the deployment status state machine
func TestValidDeploymentTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    DeploymentStatus
		to      DeploymentStatus
		allowed bool
	}{
		{
			name:    "Running can pause",
			from:    DeploymentStatusRunning,
			to:      DeploymentStatusPaused,
			allowed: true,
		},
		{
			name:    "Paused can resume",
			from:    DeploymentStatusPaused,
			to:      DeploymentStatusRunning,
			allowed: true,
		},
		{
			name:    "Running can stop",
			from:    DeploymentStatusRunning,
			to:      DeploymentStatusStopped,
			allowed: true,
		},
		{
			name:    "Paused can stop",
			from:    DeploymentStatusPaused,
			to:      DeploymentStatusStopped,
			allowed: true,
		},
		{
			name:    "Running can fail",
			from:    DeploymentStatusRunning,
			to:      DeploymentStatusError,
			allowed: true,
		},
		{
			name:    "Stopped is terminal",
			from:    DeploymentStatusStopped,
			to:      DeploymentStatusRunning,
			allowed: false,
		},
		{
			name:    "Error is terminal",
			from:    DeploymentStatusError,
			to:      DeploymentStatusRunning,
			allowed: false,
		},
		{
			name:    "Error cannot stop",
			from:    DeploymentStatusError,
			to:      DeploymentStatusStopped,
			allowed: false,
		},
		{
			name:    "Same status is not a transition",
			from:    DeploymentStatusRunning,
			to:      DeploymentStatusRunning,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, ValidDeploymentTransition(tt.from, tt.to))
		})
	}
}

// TestDeploymentStatusIsTerminal tests terminal state detection
func TestDeploymentStatusIsTerminal(t *testing.T) {
	assert.False(t, DeploymentStatusRunning.IsTerminal())
	assert.False(t, DeploymentStatusPaused.IsTerminal())
	assert.True(t, DeploymentStatusStopped.IsTerminal())
	assert.True(t, DeploymentStatusError.IsTerminal())
}

// TestConvertDeploymentStatus tests status string coercion
func TestConvertDeploymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DeploymentStatus
	}{
		{
			name:     "Lowercase running",
			input:    "running",
			expected: DeploymentStatusRunning,
		},
		{
			name:     "Uppercase RUNNING",
			input:    "RUNNING",
			expected: DeploymentStatusRunning,
		},
		{
			name:     "Active maps to running",
			input:    "active",
			expected: DeploymentStatusRunning,
		},
		{
			name:     "Paused",
			input:    "paused",
			expected: DeploymentStatusPaused,
		},
		{
			name:     "Stopped",
			input:    "stopped",
			expected: DeploymentStatusStopped,
		},
		{
			name:     "Failed maps to error",
			input:    "failed",
			expected: DeploymentStatusError,
		},
		{
			name:     "Unknown value defaults to stopped",
			input:    "launching",
			expected: DeploymentStatusStopped,
		},
		{
			name:     "Empty string defaults to stopped",
			input:    "",
			expected: DeploymentStatusStopped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertDeploymentStatus(tt.input))
		})
	}
}

// TestConvertExecutionFrequency tests frequency string coercion
func TestConvertExecutionFrequency(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ExecutionFrequency
	}{
		{
			name:     "One minute",
			input:    "1m",
			expected: FrequencyOneMinute,
		},
		{
			name:     "Five minutes",
			input:    "5m",
			expected: FrequencyFiveMinutes,
		},
		{
			name:     "Fifteen minutes",
			input:    "15m",
			expected: FrequencyFifteenMinutes,
		},
		{
			name:     "Thirty minutes",
			input:    "30m",
			expected: FrequencyThirtyMinutes,
		},
		{
			name:     "One hour",
			input:    "1h",
			expected: FrequencyOneHour,
		},
		{
			name:     "60m maps to one hour",
			input:    "60m",
			expected: FrequencyOneHour,
		},
		{
			name:     "Uppercase 1H",
			input:    "1H",
			expected: FrequencyOneHour,
		},
		{
			name:     "Unknown defaults to five minutes",
			input:    "2h",
			expected: FrequencyFiveMinutes,
		},
		{
			name:     "Empty defaults to five minutes",
			input:    "",
			expected: FrequencyFiveMinutes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertExecutionFrequency(tt.input))
		})
	}
}

// TestExecutionFrequencyInterval tests tick interval mapping
func TestExecutionFrequencyInterval(t *testing.T) {
	assert.Equal(t, time.Minute, FrequencyOneMinute.Interval())
	assert.Equal(t, 5*time.Minute, FrequencyFiveMinutes.Interval())
	assert.Equal(t, 15*time.Minute, FrequencyFifteenMinutes.Interval())
	assert.Equal(t, 30*time.Minute, FrequencyThirtyMinutes.Interval())
	assert.Equal(t, time.Hour, FrequencyOneHour.Interval())

	// Unknown frequencies fall back to the default tick
	assert.Equal(t, 5*time.Minute, ExecutionFrequency("2h").Interval())
}
