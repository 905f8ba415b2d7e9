package model

import "testing"

func TestMessageStatus_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status MessageStatus
		want   bool
	}{
		{MessageStatusPending, true},
		{MessageStatusQueued, true},
		{MessageStatusSending, true},
		{MessageStatusSent, true},
		{MessageStatusDelivered, true},
		{MessageStatusFailed, true},
		{MessageStatusUndelivered, true},
		{MessageStatusRejected, true},
		{MessageStatus("bounced"), false},
		{MessageStatus(""), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestMessageStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status MessageStatus
		want   bool
	}{
		{MessageStatusPending, false},
		{MessageStatusQueued, false},
		{MessageStatusSending, false},
		{MessageStatusSent, false},
		{MessageStatusDelivered, true},
		{MessageStatusFailed, true},
		{MessageStatusUndelivered, true},
		{MessageStatusRejected, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestMessageStatus_IsFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status MessageStatus
		want   bool
	}{
		{MessageStatusFailed, true},
		{MessageStatusUndelivered, true},
		{MessageStatusRejected, true},
		{MessageStatusDelivered, false},
		{MessageStatusSent, false},
		{MessageStatusPending, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := tt.status.IsFailure(); got != tt.want {
				t.Errorf("IsFailure(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestMessageStatus_CanAdvanceTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from MessageStatus
		to   MessageStatus
		want bool
	}{
		{"pending to queued", MessageStatusPending, MessageStatusQueued, true},
		{"pending to sent", MessageStatusPending, MessageStatusSent, true},
		{"pending to delivered", MessageStatusPending, MessageStatusDelivered, true},
		{"queued to sent", MessageStatusQueued, MessageStatusSent, true},
		{"sent to delivered", MessageStatusSent, MessageStatusDelivered, true},
		{"sent to failed", MessageStatusSent, MessageStatusFailed, true},
		{"sent to queued replay", MessageStatusSent, MessageStatusQueued, false},
		{"sent to pending", MessageStatusSent, MessageStatusPending, false},
		{"delivered never regresses", MessageStatusDelivered, MessageStatusSent, false},
		{"delivered to failed", MessageStatusDelivered, MessageStatusFailed, false},
		{"failed to delivered", MessageStatusFailed, MessageStatusDelivered, false},
		{"rejected stays rejected", MessageStatusRejected, MessageStatusDelivered, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
				t.Errorf("CanAdvanceTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	statuses := TerminalStatuses()
	if len(statuses) != 4 {
		t.Fatalf("TerminalStatuses() returned %d entries, want 4", len(statuses))
	}

	for _, s := range statuses {
		if !MessageStatus(s).IsTerminal() {
			t.Errorf("TerminalStatuses() contains non-terminal status %q", s)
		}
	}
}
