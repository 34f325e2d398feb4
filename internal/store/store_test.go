package store

import (
	"errors"
	"testing"
)

func TestPrefixKey(t *testing.T) {
	tests := []struct {
		namespace, key, want string
	}{
		{"", "admins", "admins"},
		{"relay", "admins", "relay:admins"},
		{"relay", "device_to_group:123", "relay:device_to_group:123"},
	}
	for _, tt := range tests {
		if got := PrefixKey(tt.namespace, tt.key); got != tt.want {
			t.Errorf("PrefixKey(%q, %q) = %q, want %q", tt.namespace, tt.key, got, tt.want)
		}
	}
}

func TestValidateKeys(t *testing.T) {
	if err := ValidateKeys("a", "b"); err != nil {
		t.Errorf("ValidateKeys() error = %v", err)
	}
	if err := ValidateKeys("a", ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("ValidateKeys() error = %v, want ErrEmptyKey", err)
	}
}
