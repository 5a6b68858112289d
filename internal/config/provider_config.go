package config

import (
	"strings"
	"time"
)

type ProviderConfig interface {
	GetAtlassianClientID() string
	GetAtlassianClientSecret() string
	GetAtlassianAuthURL() string
	GetAtlassianTokenURL() string
	GetAtlassianAPIURL() string
	GetAtlassianAuthAPIURL() string
	GetAtlassianIssuer() string
	GetAtlassianScopes() []string
	GetOAuthRedirectURL() string
	GetBitbucketAPIURL() string
	GetKYGBaseURL() string
	GetProviderTimeout() time.Duration
}

type Providers struct{}

var _ ProviderConfig = Providers{}

func (Providers) GetAtlassianClientID() string {
	return GetEnv("ATLASSIAN_CLIENT_ID", "")
}

func (Providers) GetAtlassianClientSecret() string {
	return GetEnv("ATLASSIAN_CLIENT_SECRET", "")
}

func (Providers) GetAtlassianAuthURL() string {
	return GetEnv("ATLASSIAN_AUTH_URL", "https://auth.atlassian.com/authorize")
}

func (Providers) GetAtlassianTokenURL() string {
	return GetEnv("ATLASSIAN_TOKEN_URL", "https://auth.atlassian.com/oauth/token")
}

// GetAtlassianAPIURL is the base for identity lookups (/me).
func (Providers) GetAtlassianAPIURL() string {
	return strings.TrimSuffix(GetEnv("ATLASSIAN_API_URL", "https://api.atlassian.com"), "/")
}

// GetAtlassianAuthAPIURL is the base for accessible-resources lookups.
func (Providers) GetAtlassianAuthAPIURL() string {
	return strings.TrimSuffix(GetEnv("ATLASSIAN_AUTH_API_URL", "https://api.atlassian.com"), "/")
}

// GetAtlassianIssuer enables OIDC discovery of the auth and token endpoints when set.
func (Providers) GetAtlassianIssuer() string {
	return GetEnv("ATLASSIAN_OIDC_ISSUER", "")
}

func (Providers) GetAtlassianScopes() []string {
	return getList("ATLASSIAN_SCOPES",
		"read:jira-work,write:jira-work,read:jira-user,read:confluence-content.all,write:confluence-content,search:confluence,read:me,offline_access")
}

func (p Providers) GetOAuthRedirectURL() string {
	return GetEnv("OAUTH_REDIRECT_URL", EnvVars{}.GetBaseURL()+"/oauth/callback")
}

func (Providers) GetBitbucketAPIURL() string {
	return strings.TrimSuffix(GetEnv("BITBUCKET_API_URL", "https://api.bitbucket.org"), "/")
}

func (Providers) GetKYGBaseURL() string {
	return strings.TrimSuffix(GetEnv("KYG_BASE_URL", "http://localhost:9000"), "/")
}

func (Providers) GetProviderTimeout() time.Duration {
	return getDuration("PROVIDER_TIMEOUT", 15*time.Second)
}
