package gizmosql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightbridge/flightbridge/pkg/adapter"
)

func TestDescriptorFromConfig_Defaults(t *testing.T) {
	desc, err := DescriptorFromConfig(adapter.Config{
		Type:     "gizmosql",
		Username: "flight",
		Password: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "localhost", desc.Host)
	assert.Equal(t, 31337, desc.Port)
	assert.True(t, desc.UseEncryption)
	assert.False(t, desc.DisableCertificateVerification)
	assert.Equal(t, 4, desc.ConcurrentTasks)
	assert.True(t, desc.RegisterComments)
	assert.False(t, desc.PrePing)
	assert.True(t, desc.CheckoutWait)
	assert.Empty(t, desc.Database)
}

func TestDescriptorFromConfig_Overrides(t *testing.T) {
	desc, err := DescriptorFromConfig(adapter.Config{
		Type:     "gizmosql",
		Host:     "db.example.com",
		Port:     4433,
		Username: "flight",
		Password: "secret",
		Database: "analytics",
		Options: map[string]string{
			"use_encryption":                   "false",
			"disable_certificate_verification": "true",
			"concurrent_tasks":                 "8",
			"register_comments":                "false",
			"pre_ping":                         "true",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "db.example.com", desc.Host)
	assert.Equal(t, 4433, desc.Port)
	assert.Equal(t, "analytics", desc.Database)
	assert.False(t, desc.UseEncryption)
	assert.True(t, desc.DisableCertificateVerification)
	assert.Equal(t, 8, desc.ConcurrentTasks)
	assert.False(t, desc.RegisterComments)
	assert.True(t, desc.PrePing)
}

func TestDescriptorFromConfig_TypedFieldsWinOverOptions(t *testing.T) {
	desc, err := DescriptorFromConfig(adapter.Config{
		Type:     "gizmosql",
		Host:     "typed-host",
		Username: "flight",
		Password: "secret",
		Options:  map[string]string{"host": "options-host"},
	})
	require.NoError(t, err)
	assert.Equal(t, "typed-host", desc.Host)
}

func TestDescriptorFromConfig_Params(t *testing.T) {
	desc, err := DescriptorFromConfig(adapter.Config{
		Type:     "gizmosql",
		Username: "flight",
		Password: "secret",
		Params: map[string]any{
			"concurrent_tasks": 2,
			"checkout_wait":    false,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, desc.ConcurrentTasks)
	assert.False(t, desc.CheckoutWait)
}

func TestDescriptorValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     adapter.Config
		wantErr string
	}{
		{
			name:    "missing username",
			cfg:     adapter.Config{Password: "secret"},
			wantErr: "username is required",
		},
		{
			name:    "missing password",
			cfg:     adapter.Config{Username: "flight"},
			wantErr: "password is required",
		},
		{
			name: "port out of range",
			cfg: adapter.Config{
				Username: "flight", Password: "secret",
				Params: map[string]any{"port": 70000},
			},
			wantErr: "outside the valid range",
		},
		{
			name: "zero concurrent tasks",
			cfg: adapter.Config{
				Username: "flight", Password: "secret",
				Params: map[string]any{"concurrent_tasks": 0},
			},
			wantErr: "concurrent_tasks must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DescriptorFromConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDescriptorURI(t *testing.T) {
	encrypted := Descriptor{Host: "h", Port: 31337, UseEncryption: true}
	assert.Equal(t, "grpc+tls://h:31337", encrypted.URI())

	plain := Descriptor{Host: "h", Port: 31337}
	assert.Equal(t, "grpc://h:31337", plain.URI())
	assert.Equal(t, "h:31337", plain.Addr())
}
