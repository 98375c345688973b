package gizmosql

import (
	"fmt"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"github.com/flightbridge/flightbridge/pkg/adapter"
)

// DefaultPort is the port GizmoSQL servers listen on by default.
const DefaultPort = 31337

// Descriptor holds the validated connection parameters for a GizmoSQL server.
// A Descriptor is immutable once built; construction rejects missing
// credentials and out-of-range ports.
type Descriptor struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// Database is the default catalog activated on every new connection.
	Database string `koanf:"database"`

	// UseEncryption selects grpc+tls transport;
	// DisableCertificateVerification additionally skips certificate checks,
	// for self-signed certificates in development.
	UseEncryption                  bool `koanf:"use_encryption"`
	DisableCertificateVerification bool `koanf:"disable_certificate_verification"`

	// ConcurrentTasks is the connection pool's concurrency ceiling.
	ConcurrentTasks int `koanf:"concurrent_tasks"`

	// RegisterComments controls whether COMMENT ON statements are emitted.
	RegisterComments bool `koanf:"register_comments"`

	// PrePing validates pooled connections at checkout, evicting and
	// replacing dead ones transparently.
	PrePing bool `koanf:"pre_ping"`

	// CheckoutWait selects the behavior at the concurrency ceiling: queue
	// until a slot frees (true) or fail fast with ResourceExhausted (false).
	CheckoutWait bool `koanf:"checkout_wait"`

	// SkipBackendVerification disables the check that the server's execution
	// engine is DuckDB. Only the DuckDB backend is supported.
	SkipBackendVerification bool `koanf:"skip_backend_verification"`
}

// descriptorDefaults mirror the recognized option defaults of the connection
// configuration surface.
var descriptorDefaults = map[string]any{
	"host":                             "localhost",
	"port":                             DefaultPort,
	"use_encryption":                   true,
	"disable_certificate_verification": false,
	"concurrent_tasks":                 4,
	"register_comments":                true,
	"pre_ping":                         false,
	"checkout_wait":                    true,
	"skip_backend_verification":        false,
}

// DescriptorFromConfig builds and validates a Descriptor from an adapter
// config. Common fields take precedence over Options/Params entries of the
// same name.
func DescriptorFromConfig(cfg adapter.Config) (Descriptor, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(descriptorDefaults, "."), nil); err != nil {
		return Descriptor{}, fmt.Errorf("failed to load descriptor defaults: %w", err)
	}

	overrides := make(map[string]any, len(cfg.Options)+len(cfg.Params)+6)
	for key, val := range cfg.Params {
		overrides[key] = val
	}
	for key, val := range cfg.Options {
		overrides[key] = val
	}
	if cfg.Host != "" {
		overrides["host"] = cfg.Host
	}
	if cfg.Port != 0 {
		overrides["port"] = cfg.Port
	}
	if cfg.Username != "" {
		overrides["username"] = cfg.Username
	}
	if cfg.Password != "" {
		overrides["password"] = cfg.Password
	}
	if cfg.Database != "" {
		overrides["database"] = cfg.Database
	}
	if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
		return Descriptor{}, fmt.Errorf("failed to load connection options: %w", err)
	}

	var desc Descriptor
	if err := k.Unmarshal("", &desc); err != nil {
		return Descriptor{}, fmt.Errorf("failed to decode connection options: %w", err)
	}

	if err := desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// Validate checks the descriptor for construction-time errors.
func (d Descriptor) Validate() error {
	if d.Username == "" {
		return fmt.Errorf("gizmosql: username is required")
	}
	if d.Password == "" {
		return fmt.Errorf("gizmosql: password is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("gizmosql: port %d is outside the valid range 1-65535", d.Port)
	}
	if d.ConcurrentTasks < 1 {
		return fmt.Errorf("gizmosql: concurrent_tasks must be at least 1, got %d", d.ConcurrentTasks)
	}
	return nil
}

// Addr returns the host:port dial target.
func (d Descriptor) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// URI returns the Flight SQL connection URI, grpc+tls:// when encryption is
// enabled and grpc:// otherwise.
func (d Descriptor) URI() string {
	scheme := "grpc"
	if d.UseEncryption {
		scheme = "grpc+tls"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, d.Host, d.Port)
}
