package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	serviceNameVar = "SERVICE_NAME"
	baseURLVar     = "BASE_URL"
	logLevelVar    = "LOG_LEVEL"
	envVar         = "ENV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Kay Gateway")
}

func (EnvVars) GetServiceName() string {
	return GetEnv(serviceNameVar, "kay-gateway")
}

// GetBaseURL returns the externally reachable base URL of the gateway
// (e.g., "https://gateway.example.com"). Provider redirect URIs are built from it.
func (EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

// GetEnv resolves a setting from the process environment, then the loaded
// config file, then the default.
func GetEnv(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value, ok := fileValue(envVar); ok && value != "" {
		return value
	}
	return defaultValue
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getBool(envVar string, defaultValue bool) bool {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return b
}

func getList(envVar, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(GetEnv(envVar, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
