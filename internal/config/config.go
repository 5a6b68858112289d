package config

// Config is everything the gateway reads at startup. Each concern is its own
// interface so components can depend on the narrow slice they use.
type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	ProviderConfig
	StorageConfig
}

// EnvConfig covers process identity and the listener.
type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetServiceName() string
	GetBaseURL() string
	GetLogLevel() string
	// GetEnv is "DEV" for local runs; DEV enables console logs and error details.
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type gatewayConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Providers
	Storage
}

// New returns a Config backed by the environment and the file loaded with LoadFile.
func New() Config {
	return gatewayConfig{}
}
