package connections

import (
	"fmt"

	"github.com/jrsteele09/kay-gateway/internal/utils"
)

// Metadata is provider specific identity and resource information. Each
// service family has its own variant; conversion to an open map happens
// only at the persistence edge through EncodeMetadata and DecodeMetadata.
type Metadata interface {
	// User returns the user projection exposed by status queries.
	User() map[string]any
	isMetadata()
}

// AtlassianUser is the identity returned by the Atlassian /me endpoint.
type AtlassianUser struct {
	AccountID string
	Name      string
	Email     string
	Picture   string
}

// Resource is an Atlassian site the user granted access to.
type Resource struct {
	ID        string
	Name      string
	URL       string
	Scopes    []string
	AvatarURL string
}

type AtlassianMetadata struct {
	AccountID string
	UserData  AtlassianUser
	Resources []Resource
	Scopes    []string
}

func (*AtlassianMetadata) isMetadata() {}

// User exposes user_data as-is for OAuth backed services.
func (m *AtlassianMetadata) User() map[string]any {
	return atlassianUserMap(m.UserData)
}

type BitbucketMetadata struct {
	UUID        string
	Username    string
	DisplayName string
	AccountID   string
	Email       string
}

func (*BitbucketMetadata) isMetadata() {}

func (m *BitbucketMetadata) User() map[string]any {
	return map[string]any{
		"uuid":         m.UUID,
		"username":     m.Username,
		"display_name": m.DisplayName,
		"email":        m.Email,
	}
}

type KYGMetadata struct {
	UserID string
	Email  string
	Name   string
}

func (*KYGMetadata) isMetadata() {}

func (m *KYGMetadata) User() map[string]any {
	return map[string]any{
		"user_id": m.UserID,
		"email":   m.Email,
		"name":    m.Name,
	}
}

// EmptyMetadata returns the zero variant for a service.
func EmptyMetadata(service ServiceName) Metadata {
	switch {
	case service.IsAtlassian():
		return &AtlassianMetadata{}
	case service == ServiceBitbucket:
		return &BitbucketMetadata{}
	case service == ServiceKYG:
		return &KYGMetadata{}
	}
	return nil
}

// CheckMetadata verifies that md is the variant used by service.
func CheckMetadata(service ServiceName, md Metadata) error {
	var ok bool
	switch md.(type) {
	case *AtlassianMetadata:
		ok = service.IsAtlassian()
	case *BitbucketMetadata:
		ok = service == ServiceBitbucket
	case *KYGMetadata:
		ok = service == ServiceKYG
	}
	if !ok {
		return fmt.Errorf("metadata %T does not belong to service %s", md, service)
	}
	return nil
}

// EncodeMetadata converts md to the open map stored by repositories.
func EncodeMetadata(md Metadata) map[string]any {
	switch m := md.(type) {
	case *AtlassianMetadata:
		resources := make([]any, 0, len(m.Resources))
		for _, r := range m.Resources {
			resources = append(resources, map[string]any{
				"id":         r.ID,
				"name":       r.Name,
				"url":        r.URL,
				"scopes":     stringsToAny(r.Scopes),
				"avatar_url": r.AvatarURL,
			})
		}
		return map[string]any{
			"account_id": m.AccountID,
			"user_data":  atlassianUserMap(m.UserData),
			"resources":  resources,
			"scopes":     stringsToAny(m.Scopes),
		}
	case *BitbucketMetadata:
		out := m.User()
		out["account_id"] = m.AccountID
		return out
	case *KYGMetadata:
		return m.User()
	}
	return map[string]any{}
}

// DecodeMetadata rebuilds the typed variant for service from a stored map.
// Unknown or mistyped fields are ignored.
func DecodeMetadata(service ServiceName, raw map[string]any) (Metadata, error) {
	switch {
	case service.IsAtlassian():
		user := utils.MapField(raw, "user_data")
		m := &AtlassianMetadata{
			AccountID: utils.StringField(raw, "account_id"),
			UserData: AtlassianUser{
				AccountID: utils.StringField(user, "account_id"),
				Name:      utils.StringField(user, "name"),
				Email:     utils.StringField(user, "email"),
				Picture:   utils.StringField(user, "picture"),
			},
			Scopes: utils.ToStringSlice(raw["scopes"]),
		}
		if list, ok := raw["resources"].([]any); ok {
			for _, item := range list {
				r, ok := item.(map[string]any)
				if !ok {
					continue
				}
				m.Resources = append(m.Resources, Resource{
					ID:        utils.StringField(r, "id"),
					Name:      utils.StringField(r, "name"),
					URL:       utils.StringField(r, "url"),
					Scopes:    utils.ToStringSlice(r["scopes"]),
					AvatarURL: utils.StringField(r, "avatar_url"),
				})
			}
		}
		return m, nil
	case service == ServiceBitbucket:
		return &BitbucketMetadata{
			UUID:        utils.StringField(raw, "uuid"),
			Username:    utils.StringField(raw, "username"),
			DisplayName: utils.StringField(raw, "display_name"),
			AccountID:   utils.StringField(raw, "account_id"),
			Email:       utils.StringField(raw, "email"),
		}, nil
	case service == ServiceKYG:
		return &KYGMetadata{
			UserID: utils.StringField(raw, "user_id"),
			Email:  utils.StringField(raw, "email"),
			Name:   utils.StringField(raw, "name"),
		}, nil
	}
	return nil, fmt.Errorf("no metadata variant for service %q", service)
}

func atlassianUserMap(u AtlassianUser) map[string]any {
	out := map[string]any{
		"account_id": u.AccountID,
		"name":       u.Name,
		"email":      u.Email,
	}
	if u.Picture != "" {
		out["picture"] = u.Picture
	}
	return out
}

func stringsToAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
