package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// MockAlerter is a test implementation of Alerter
type MockAlerter struct {
	alerts []Alert
	err    error
}

func NewMockAlerter(err error) *MockAlerter {
	return &MockAlerter{
		alerts: make([]Alert, 0),
		err:    err,
	}
}

func (m *MockAlerter) Send(ctx context.Context, alert Alert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

// withMockDefault swaps the default manager for one backed by a mock and
// restores the original when the test finishes
func withMockDefault(t *testing.T) *MockAlerter {
	t.Helper()

	mock := NewMockAlerter(nil)
	original := GetDefaultManager()
	SetDefaultManager(NewManager(mock))
	t.Cleanup(func() {
		SetDefaultManager(original)
	})
	return mock
}

func TestNewManager(t *testing.T) {
	alerter1 := NewMockAlerter(nil)
	alerter2 := NewMockAlerter(nil)

	manager := NewManager(alerter1, alerter2)

	if manager == nil {
		t.Fatal("Expected non-nil manager")
	}

	if len(manager.alerters) != 2 {
		t.Errorf("Expected 2 alerters, got %d", len(manager.alerters))
	}
}

func TestManager_Send(t *testing.T) {
	tests := []struct {
		name           string
		alert          Alert
		mockErr        error
		expectErr      bool
		checkTimestamp bool
	}{
		{
			name: "Successful send",
			alert: Alert{
				Title:    "Test Alert",
				Message:  "Test Message",
				Severity: SeverityInfo,
			},
			mockErr:        nil,
			expectErr:      false,
			checkTimestamp: true,
		},
		{
			name: "Send with existing timestamp",
			alert: Alert{
				Title:     "Test Alert",
				Message:   "Test Message",
				Severity:  SeverityWarning,
				Timestamp: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
			},
			mockErr:        nil,
			expectErr:      false,
			checkTimestamp: false,
		},
		{
			name: "Send with alerter error",
			alert: Alert{
				Title:    "Test Alert",
				Message:  "Test Message",
				Severity: SeverityCritical,
			},
			mockErr:   errors.New("send failed"),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockAlerter(tt.mockErr)
			manager := NewManager(mock)

			err := manager.Send(context.Background(), tt.alert)

			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}

			if len(mock.alerts) != 1 {
				t.Fatalf("Expected 1 alert sent, got %d", len(mock.alerts))
			}

			sent := mock.alerts[0]
			if sent.Title != tt.alert.Title {
				t.Errorf("Expected title %q, got %q", tt.alert.Title, sent.Title)
			}

			if tt.checkTimestamp && sent.Timestamp.IsZero() {
				t.Error("Expected timestamp to be set automatically")
			}
			if !tt.alert.Timestamp.IsZero() && !sent.Timestamp.Equal(tt.alert.Timestamp) {
				t.Error("Existing timestamp should be preserved")
			}
		})
	}
}

func TestManager_SendToMultipleAlerters(t *testing.T) {
	alerter1 := NewMockAlerter(nil)
	alerter2 := NewMockAlerter(nil)
	manager := NewManager(alerter1, alerter2)

	alert := Alert{
		Title:    "Broadcast Test",
		Message:  "Should reach all alerters",
		Severity: SeverityWarning,
	}

	if err := manager.Send(context.Background(), alert); err != nil {
		t.Errorf("Send() failed: %v", err)
	}

	if len(alerter1.alerts) != 1 {
		t.Error("First alerter did not receive alert")
	}
	if len(alerter2.alerts) != 1 {
		t.Error("Second alerter did not receive alert")
	}
}

func TestManager_SendPartialFailure(t *testing.T) {
	failing := NewMockAlerter(errors.New("delivery failed"))
	working := NewMockAlerter(nil)
	manager := NewManager(failing, working)

	err := manager.Send(context.Background(), Alert{
		Title:    "Partial Failure Test",
		Message:  "One alerter fails",
		Severity: SeverityWarning,
	})

	// The failing alerter's error is returned, but delivery continues
	if err == nil {
		t.Error("Expected error from failing alerter")
	}
	if len(working.alerts) != 1 {
		t.Error("Working alerter should still receive the alert")
	}
}

func TestManager_NilManagerDropsAlerts(t *testing.T) {
	var manager *Manager

	err := manager.Send(context.Background(), Alert{
		Title:    "Dropped",
		Message:  "Nil manager is a no-op",
		Severity: SeverityInfo,
	})
	if err != nil {
		t.Errorf("Nil manager Send() should return nil, got %v", err)
	}

	if err := manager.SendCritical(context.Background(), "Dropped", "msg", nil); err != nil {
		t.Errorf("Nil manager SendCritical() should return nil, got %v", err)
	}
}

func TestManager_SendCritical(t *testing.T) {
	mock := NewMockAlerter(nil)
	manager := NewManager(mock)

	metadata := map[string]interface{}{
		"deployment_id": uuid.New().String(),
	}

	if err := manager.SendCritical(context.Background(), "Critical Test", "Critical message", metadata); err != nil {
		t.Errorf("SendCritical() failed: %v", err)
	}

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	if mock.alerts[0].Severity != SeverityCritical {
		t.Errorf("Expected severity %s, got %s", SeverityCritical, mock.alerts[0].Severity)
	}
	if mock.alerts[0].Metadata["deployment_id"] != metadata["deployment_id"] {
		t.Error("Metadata not preserved")
	}
}

func TestManager_SendWarning(t *testing.T) {
	mock := NewMockAlerter(nil)
	manager := NewManager(mock)

	if err := manager.SendWarning(context.Background(), "Warning Test", "Warning message", nil); err != nil {
		t.Errorf("SendWarning() failed: %v", err)
	}

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	if mock.alerts[0].Severity != SeverityWarning {
		t.Errorf("Expected severity %s, got %s", SeverityWarning, mock.alerts[0].Severity)
	}
}

func TestManager_SendInfo(t *testing.T) {
	mock := NewMockAlerter(nil)
	manager := NewManager(mock)

	if err := manager.SendInfo(context.Background(), "Info Test", "Info message", nil); err != nil {
		t.Errorf("SendInfo() failed: %v", err)
	}

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	if mock.alerts[0].Severity != SeverityInfo {
		t.Errorf("Expected severity %s, got %s", SeverityInfo, mock.alerts[0].Severity)
	}
}

func TestLogAlerter_Send(t *testing.T) {
	alerter := NewLogAlerter()

	alert := Alert{
		Title:     "Log Test",
		Message:   "Testing log alerter",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"symbol": "AAPL",
			"shares": 12.0,
		},
	}

	if err := alerter.Send(context.Background(), alert); err != nil {
		t.Errorf("LogAlerter.Send() failed: %v", err)
	}
}

func TestAlertTradeFill(t *testing.T) {
	mock := withMockDefault(t)

	deploymentID := uuid.New()
	AlertTradeFill(context.Background(), deploymentID, "RSI Dip Buyer", "AAPL", "buy", 12, 212.50)

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityInfo {
		t.Errorf("Expected severity %s, got %s", SeverityInfo, alert.Severity)
	}
	if alert.Title != "Trade Filled" {
		t.Errorf("Unexpected title: %s", alert.Title)
	}
	if alert.Metadata["deployment_id"] != deploymentID.String() {
		t.Error("Deployment ID not in metadata")
	}
	if alert.Metadata["symbol"] != "AAPL" {
		t.Error("Symbol not in metadata")
	}
	if alert.Metadata["side"] != "buy" {
		t.Error("Side not in metadata")
	}
	if alert.Metadata["price"] != 212.50 {
		t.Error("Price not in metadata")
	}
}

func TestAlertDeploymentError(t *testing.T) {
	mock := withMockDefault(t)

	deploymentID := uuid.New()
	AlertDeploymentError(context.Background(), deploymentID, "RSI Dip Buyer", errors.New("order rejected"))

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected severity %s, got %s", SeverityCritical, alert.Severity)
	}
	if alert.Title != "Deployment Stopped" {
		t.Errorf("Unexpected title: %s", alert.Title)
	}
	if alert.Metadata["bot_name"] != "RSI Dip Buyer" {
		t.Error("Bot name not in metadata")
	}
	if alert.Metadata["error"] != "order rejected" {
		t.Error("Error not in metadata")
	}
}

func TestAlertOrderFailed(t *testing.T) {
	mock := withMockDefault(t)

	AlertOrderFailed(context.Background(), "AAPL", "sell", 8, errors.New("insufficient shares"))

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected severity %s, got %s", SeverityCritical, alert.Severity)
	}
	if alert.Title != "Order Placement Failed" {
		t.Errorf("Unexpected title: %s", alert.Title)
	}
	if alert.Metadata["symbol"] != "AAPL" {
		t.Error("Symbol not in metadata")
	}
	if alert.Metadata["shares"] != 8.0 {
		t.Error("Shares not in metadata")
	}
}

func TestAlertWorkflowFailed(t *testing.T) {
	mock := withMockDefault(t)

	sessionID := uuid.NewString()
	AlertWorkflowFailed(context.Background(), sessionID, errors.New("backtest failed"))

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityWarning {
		t.Errorf("Expected severity %s, got %s", SeverityWarning, alert.Severity)
	}
	if alert.Metadata["session_id"] != sessionID {
		t.Error("Session ID not in metadata")
	}
}

func TestAlertBreakerOpen(t *testing.T) {
	mock := withMockDefault(t)

	AlertBreakerOpen(context.Background(), "alpaca")

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected severity %s, got %s", SeverityCritical, alert.Severity)
	}
	if alert.Metadata["service"] != "alpaca" {
		t.Error("Service not in metadata")
	}
}

func TestAlertSystemError(t *testing.T) {
	mock := withMockDefault(t)

	AlertSystemError(context.Background(), "live-engine", errors.New("scheduler wedged"))

	if len(mock.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mock.alerts))
	}

	alert := mock.alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected severity %s, got %s", SeverityCritical, alert.Severity)
	}
	if alert.Metadata["component"] != "live-engine" {
		t.Error("Component not in metadata")
	}
}

func TestDefaultManager(t *testing.T) {
	original := GetDefaultManager()
	defer SetDefaultManager(original)

	if original == nil {
		t.Fatal("Default manager should not be nil")
	}

	custom := NewManager(NewMockAlerter(nil))
	SetDefaultManager(custom)

	if GetDefaultManager() != custom {
		t.Error("SetDefaultManager did not replace the default")
	}
}

func TestSeverityConstants(t *testing.T) {
	if SeverityInfo != "INFO" {
		t.Errorf("SeverityInfo = %s, want INFO", SeverityInfo)
	}
	if SeverityWarning != "WARNING" {
		t.Errorf("SeverityWarning = %s, want WARNING", SeverityWarning)
	}
	if SeverityCritical != "CRITICAL" {
		t.Errorf("SeverityCritical = %s, want CRITICAL", SeverityCritical)
	}
}
