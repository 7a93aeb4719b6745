package pairup

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidDeepLink = errors.New("invalid team deep link")

// TeamLink holds the identifiers encoded in a Teams team deep link such as
// https://teams.microsoft.com/l/team/19%3aABC%40thread.tacv2/conversations?groupId=G1&tenantId=T1
type TeamLink struct {
	TeamID   string
	GroupID  string
	TenantID string
}

func ParseTeamLink(link string) (TeamLink, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return TeamLink{}, fmt.Errorf("%w: %v", ErrInvalidDeepLink, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return TeamLink{}, fmt.Errorf("%w: %q is not an absolute url", ErrInvalidDeepLink, link)
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	var teamID string
	for i, seg := range segments {
		if seg == "team" && i+1 < len(segments) {
			teamID, err = url.PathUnescape(segments[i+1])
			if err != nil {
				return TeamLink{}, fmt.Errorf("%w: %v", ErrInvalidDeepLink, err)
			}
			break
		}
	}
	if teamID == "" {
		return TeamLink{}, fmt.Errorf("%w: missing team id", ErrInvalidDeepLink)
	}

	q := u.Query()
	groupID := q.Get("groupId")
	if groupID == "" {
		return TeamLink{}, fmt.Errorf("%w: missing groupId", ErrInvalidDeepLink)
	}

	return TeamLink{
		TeamID:   teamID,
		GroupID:  groupID,
		TenantID: q.Get("tenantId"),
	}, nil
}
