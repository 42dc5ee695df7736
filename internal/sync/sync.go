package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/bcgov/ago-group-sync/internal/portal"
	"github.com/bcgov/ago-group-sync/tools"
)

// Portal is the slice of the portal API a sync run uses.
type Portal interface {
	MemberAdder
	Authenticate(ctx context.Context) error
	FetchOrgUsers(ctx context.Context, maxCount int) ([]portal.User, error)
	FindGroup(ctx context.Context, id string) (*portal.Group, error)
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// AccountVerifier narrows candidates to accounts that are still active in
// the backing identity directory.
type AccountVerifier interface {
	FilterActive(ctx context.Context, users []portal.User) ([]portal.User, error)
}

type Options struct {
	GroupID   string
	MaxUsers  int
	BatchSize int
	DryRun    bool
	// ReportPath, when set, receives the usernames selected for addition.
	// Nothing is written when there is nobody to add.
	ReportPath string
	// Verifier is optional.
	Verifier AccountVerifier
}

type Result struct {
	Group           *portal.Group
	OrgUsers        int
	GovernmentUsers int
	GroupMembers    int
	ToAdd           []string
	Batches         int
	NotAdded        []string
	ReportPath      string
}

type Syncer struct {
	portal Portal
	opts   Options
	now    func() time.Time
}

func New(p Portal, opts Options) *Syncer {
	opts.BatchSize = effectiveBatchSize(opts.BatchSize)
	return &Syncer{portal: p, opts: opts, now: time.Now}
}

// Run performs one pass: authenticate, fetch and filter org users, resolve
// the group, diff against its members and add the missing users.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	if err := s.portal.Authenticate(ctx); err != nil {
		return res, err
	}

	tools.Log.Info("Retrieving list of all organization users")
	orgUsers, err := s.portal.FetchOrgUsers(ctx, s.opts.MaxUsers)
	if err != nil {
		return res, err
	}
	res.OrgUsers = len(orgUsers)

	govtUsers := FilterGovernmentUsers(orgUsers)
	tools.Log.WithFields(map[string]interface{}{
		"org_users":        len(orgUsers),
		"government_users": len(govtUsers),
	}).Info("Filtered organization users")

	if s.opts.Verifier != nil {
		verified, err := s.opts.Verifier.FilterActive(ctx, govtUsers)
		if err != nil {
			return res, fmt.Errorf("verify accounts: %w", err)
		}
		tools.Log.WithFields(map[string]interface{}{
			"candidates": len(govtUsers),
			"active":     len(verified),
		}).Info("Verified accounts against IDIR")
		govtUsers = verified
	}
	res.GovernmentUsers = len(govtUsers)

	tools.Log.WithField("group", s.opts.GroupID).Info("Searching for group")
	group, err := s.portal.FindGroup(ctx, s.opts.GroupID)
	if err != nil {
		return res, err
	}
	res.Group = group

	members, err := s.portal.GroupMembers(ctx, group.ID)
	if err != nil {
		return res, err
	}
	res.GroupMembers = len(members)
	tools.Log.WithFields(map[string]interface{}{
		"group":   group.ID,
		"title":   group.Title,
		"members": len(members),
	}).Info("Loaded group members")

	res.ToAdd = ComputeMissingUsers(govtUsers, members)

	if s.opts.ReportPath != "" && len(res.ToAdd) > 0 {
		path, err := WriteReport(s.opts.ReportPath, group.ID, res.ToAdd, s.now())
		if err != nil {
			return res, err
		}
		res.ReportPath = path
		tools.Log.WithField("path", path).Info("Wrote list of users to add")
	}

	if len(res.ToAdd) == 0 {
		tools.Log.WithField("group", group.ID).Info("No new users to add")
		return res, nil
	}

	tools.Log.WithField("count", len(res.ToAdd)).Info("Adding the following users to the group")
	for _, name := range res.ToAdd {
		tools.Log.Info(name)
	}

	if s.opts.DryRun {
		for _, name := range res.ToAdd {
			tools.Log.Debugf("[DRY RUN] Would add %s to %s", name, group.ID)
		}
		return res, nil
	}

	res.Batches, res.NotAdded, err = AddUsersInBatches(ctx, s.portal, group.ID, res.ToAdd, s.opts.BatchSize)
	return res, err
}
