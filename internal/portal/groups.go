package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bcgov/ago-group-sync/tools"
)

type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

type groupSearch struct {
	Total   int     `json:"total"`
	Results []Group `json:"results"`
}

type groupUsers struct {
	Owner  string   `json:"owner"`
	Admins []string `json:"admins"`
	Users  []string `json:"users"`
}

type addUsersResponse struct {
	NotAdded []string `json:"notAdded"`
}

// FindGroup searches for the group with exactly the given id. It returns
// ErrGroupNotFound when the search yields no such group.
func (c *Client) FindGroup(ctx context.Context, id string) (*Group, error) {
	params := url.Values{
		"q":   {"id:" + id},
		"num": {"10"},
	}

	var resp groupSearch
	if err := c.get(ctx, "/community/groups", params, &resp); err != nil {
		return nil, fmt.Errorf("search for group %s: %w", id, err)
	}

	for _, g := range resp.Results {
		if g.ID == id {
			tools.Log.WithFields(map[string]interface{}{
				"id":    g.ID,
				"title": g.Title,
				"owner": g.Owner,
			}).Debug("Group found")
			return &g, nil
		}
	}

	return nil, fmt.Errorf("%w: id %s (%d search results)", ErrGroupNotFound, id, len(resp.Results))
}

// GroupMembers returns the usernames of everyone in the group: owner,
// admins and users, each listed once.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var resp groupUsers
	path := "/community/groups/" + url.PathEscape(groupID) + "/users"
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", groupID, err)
	}

	seen := make(map[string]struct{})
	var members []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		members = append(members, name)
	}

	add(resp.Owner)
	for _, a := range resp.Admins {
		add(a)
	}
	for _, u := range resp.Users {
		add(u)
	}
	return members, nil
}

// AddUsers adds usernames to the group in a single call. The portal caps the
// call at 25 usernames. It returns the usernames the portal declined to add.
func (c *Client) AddUsers(ctx context.Context, groupID string, usernames []string) ([]string, error) {
	form := url.Values{
		"users": {strings.Join(usernames, ",")},
	}

	var resp addUsersResponse
	path := "/community/groups/" + url.PathEscape(groupID) + "/addUsers"
	if err := c.post(ctx, path, form, &resp); err != nil {
		return nil, fmt.Errorf("add %d users to group %s: %w", len(usernames), groupID, err)
	}
	return resp.NotAdded, nil
}
