package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bcgov/ago-group-sync/tools"
)

// PageSize is the most users the directory returns per request.
const PageSize = 100

// User is an account in the portal's organization directory.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type usersPage struct {
	Total     int    `json:"total"`
	Start     int    `json:"start"`
	Num       int    `json:"num"`
	NextStart int    `json:"nextStart"`
	Users     []User `json:"users"`
}

// FetchOrgUsers returns up to maxCount users from the organization directory,
// paging through it. A warning is logged when the directory holds more users
// than maxCount.
func (c *Client) FetchOrgUsers(ctx context.Context, maxCount int) ([]User, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	var users []User
	start := 1
	for page := 1; ; page++ {
		num := min(PageSize, maxCount-len(users))
		params := url.Values{
			"start": {strconv.Itoa(start)},
			"num":   {strconv.Itoa(num)},
		}

		tools.Log.WithFields(map[string]interface{}{
			"page":  page,
			"start": start,
		}).Debug("Fetching page of org users")

		var resp usersPage
		if err := c.get(ctx, "/portals/self/users", params, &resp); err != nil {
			return nil, fmt.Errorf("fetch org users page %d: %w", page, err)
		}

		if page == 1 && resp.Total > maxCount {
			tools.Log.WithFields(map[string]interface{}{
				"total": resp.Total,
				"cap":   maxCount,
			}).Warn("Organization has more users than the fetch cap; remaining users are not synced")
		}

		users = append(users, resp.Users...)

		if len(users) >= maxCount || len(resp.Users) == 0 || resp.NextStart <= 0 {
			break
		}
		start = resp.NextStart
	}

	if len(users) > maxCount {
		users = users[:maxCount]
	}
	return users, nil
}
