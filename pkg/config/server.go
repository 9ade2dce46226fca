package config

import "time"

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host"`

	// Port is the listen port.
	Port string `yaml:"port"`

	// JWTSecret signs and verifies dashboard API tokens. Deployments must
	// override the default.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is how long issued tokens remain valid.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DefaultServerConfig returns server defaults, honoring HTTP_PORT, PORT,
// and JWT_SECRET environment variables.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:      "0.0.0.0",
		Port:      firstEnv("8080", "HTTP_PORT", "PORT"),
		JWTSecret: firstEnv("digital-employee-swarm-secret-key-change-me", "JWT_SECRET"),
		TokenTTL:  24 * time.Hour,
	}
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
