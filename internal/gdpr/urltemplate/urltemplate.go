// Package urltemplate resolves per-profile GDPR endpoint URLs from service
// URL templates.
package urltemplate

import (
	"net/url"
	"strings"

	profilemodels "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
)

// Recognized substitution placeholders. Any other $name in a template is
// left verbatim.
const (
	PlaceholderProfileID = "$profile_id"
	PlaceholderUserUUID  = "$user_uuid"
)

// Resolve computes the concrete GDPR endpoint URL for a service and profile.
// The empty string means "no URL": the service cannot be called for this
// profile.
//
// The template may reference $profile_id and $user_uuid. A template that
// needs $user_uuid fails when the profile has no linked user account, so an
// unmatched placeholder never leaks into the URL. A template with no
// recognized placeholders is treated as a URL prefix and the profile ID is
// appended with URL-join semantics.
func Resolve(service *registry.Service, profile *profilemodels.Profile) string {
	if service == nil || profile == nil || service.GDPRURL == "" {
		return ""
	}
	template := service.GDPRURL

	values := map[string]string{
		PlaceholderProfileID: profile.ID.String(),
	}
	if profile.HasLinkedUser() {
		values[PlaceholderUserUUID] = profile.UserID.String()
	}

	resolved, substituted, ok := substitute(template, values)
	if !ok {
		return ""
	}
	if substituted {
		return resolved
	}

	// No placeholders: the template is a prefix and the profile ID becomes
	// the last path segment.
	return join(template, profile.ID.String())
}

// substitute replaces recognized placeholders at identifier boundaries, so
// $profile_idx is a distinct unknown name and stays verbatim. A recognized
// placeholder with no value available (an unlinked profile's $user_uuid)
// makes the whole template unresolvable.
func substitute(template string, values map[string]string) (resolved string, substituted, ok bool) {
	var b strings.Builder
	for i := 0; i < len(template); {
		if template[i] != '$' {
			b.WriteByte(template[i])
			i++
			continue
		}
		j := i + 1
		for j < len(template) && isIdentChar(template[j]) {
			j++
		}
		name := template[i:j]
		switch name {
		case PlaceholderProfileID, PlaceholderUserUUID:
			value, known := values[name]
			if !known {
				return "", false, false
			}
			b.WriteString(value)
			substituted = true
		default:
			b.WriteString(name)
		}
		i = j
	}
	return b.String(), substituted, true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// join appends ref to base with relative-reference resolution, so a base
// without a trailing slash has its last segment replaced rather than
// growing a double slash.
func join(base, ref string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return parsed.ResolveReference(refURL).String()
}
