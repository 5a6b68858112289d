package connections

import (
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

// ServiceName identifies an external service a device session can connect.
type ServiceName string

const (
	ServiceJira       ServiceName = "jira"
	ServiceConfluence ServiceName = "confluence"
	ServiceBitbucket  ServiceName = "bitbucket"
	ServiceKYG        ServiceName = "kyg"
)

var knownServices = []ServiceName{ServiceJira, ServiceConfluence, ServiceBitbucket, ServiceKYG}

// KnownServices lists every service in a stable order.
func KnownServices() []ServiceName {
	return append([]ServiceName(nil), knownServices...)
}

func ParseServiceName(s string) (ServiceName, error) {
	name := ServiceName(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range knownServices {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownService, s)
}

// IsAtlassian reports whether the service authenticates through the shared
// Atlassian OAuth app.
func (s ServiceName) IsAtlassian() bool {
	return s == ServiceJira || s == ServiceConfluence
}

func (s ServiceName) String() string {
	return string(s)
}
