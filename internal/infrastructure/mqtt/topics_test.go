package mqtt

import (
	"errors"
	"testing"
)

func TestTopics_SMSOutgoing(t *testing.T) {
	got, err := Topics{}.SMSOutgoing("860000000000001")
	if err != nil {
		t.Fatalf("SMSOutgoing() error = %v", err)
	}
	if got != "sms/outgoing/860000000000001" {
		t.Errorf("SMSOutgoing() = %q", got)
	}

	if _, err := (Topics{}).SMSOutgoing("86/1"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("SMSOutgoing(with slash) error = %v, want ErrInvalidTopic", err)
	}
}

func TestTopics_Inbound(t *testing.T) {
	want := []string{"sms/incoming", "sms/status", "device/status"}
	got := Topics{}.Inbound()
	if len(got) != len(want) {
		t.Fatalf("Inbound() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Inbound()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateTopicLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"860000000000001", false},
		{"gateway-01", false},
		{"", true},
		{"a/b", true},
		{"+", true},
		{"dev#", true},
		{"nul\x00", true},
	}

	for _, tt := range tests {
		err := ValidateTopicLevel(tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopicLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateTopicLevel(%q) error = %v, want ErrInvalidTopic", tt.level, err)
		}
	}
}
