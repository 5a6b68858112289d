package config

import (
	"sort"
	"strings"
)

type Cors struct{}

var _ CorsConfig = Cors{}

// AllowedOrigins is the normalised set of browser origins the gateway answers
// with CORS headers. "*" admits any origin without credentials.
type AllowedOrigins map[string]struct{}

func normaliseOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[normaliseOrigin(origin)]
	return ok
}

func (a AllowedOrigins) String() string {
	origins := make([]string, 0, len(a))
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range getList("CORS_ALLOWED_ORIGINS", "http://localhost:3000") {
		origins[normaliseOrigin(o)] = struct{}{}
	}
	return origins
}

// The gateway routes only use these verbs.
func (Cors) GetAllowedMethods() string {
	return "GET, POST, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return strings.Join(getList("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Request-Id"), ", ")
}
