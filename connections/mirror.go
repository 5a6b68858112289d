package connections

// MirrorPolicy maps a service to the sibling that shares its upstream
// identity. Connect and disconnect propagate to the sibling while the
// sibling holds the same token material.
type MirrorPolicy map[ServiceName]ServiceName

// DefaultMirrorPolicy pairs the two Atlassian products.
var DefaultMirrorPolicy = MirrorPolicy{
	ServiceJira:       ServiceConfluence,
	ServiceConfluence: ServiceJira,
}

func (p MirrorPolicy) Sibling(s ServiceName) (ServiceName, bool) {
	sibling, ok := p[s]
	return sibling, ok && sibling != s
}

// IsMirror reports whether sibling is a mirror of source: it carries the
// same token material and so has no independent credential.
func IsMirror(source, sibling *Connection) bool {
	if source == nil || sibling == nil {
		return false
	}
	return source.Credentials.SameMaterial(sibling.Credentials)
}

// ShouldPropagateStore decides whether storing new credentials for a source
// service should also write its sibling. previous is the source row before
// the write, sibling the current sibling row; either may be nil.
func ShouldPropagateStore(previous, sibling *Connection) bool {
	if sibling == nil {
		return true
	}
	return IsMirror(previous, sibling)
}

// ShouldPropagateDelete decides whether removing source should also remove sibling.
func ShouldPropagateDelete(source, sibling *Connection) bool {
	return IsMirror(source, sibling)
}
