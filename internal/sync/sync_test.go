package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bcgov/ago-group-sync/internal/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fakePortal is an in-memory Portal. Added users become members.
type fakePortal struct {
	orgUsers []portal.User
	groups   map[string][]string

	errOnAuth  error
	failAtCall int // 1-based addUsers call to fail; 0 never fails
	declined   map[string]bool

	addCalls [][]string
	maxSeen  int
}

func newFakePortal(users ...portal.User) *fakePortal {
	return &fakePortal{
		orgUsers: users,
		groups:   map[string][]string{"g1": {}},
		declined: map[string]bool{},
	}
}

func (f *fakePortal) Authenticate(ctx context.Context) error {
	return f.errOnAuth
}

func (f *fakePortal) FetchOrgUsers(ctx context.Context, maxCount int) ([]portal.User, error) {
	f.maxSeen = maxCount
	if len(f.orgUsers) > maxCount {
		return append([]portal.User(nil), f.orgUsers[:maxCount]...), nil
	}
	return append([]portal.User(nil), f.orgUsers...), nil
}

func (f *fakePortal) FindGroup(ctx context.Context, id string) (*portal.Group, error) {
	if _, ok := f.groups[id]; !ok {
		return nil, fmt.Errorf("%w: id %s", portal.ErrGroupNotFound, id)
	}
	return &portal.Group{ID: id, Title: "BC Map Hub"}, nil
}

func (f *fakePortal) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return append([]string(nil), f.groups[groupID]...), nil
}

func (f *fakePortal) AddUsers(ctx context.Context, groupID string, usernames []string) ([]string, error) {
	f.addCalls = append(f.addCalls, append([]string(nil), usernames...))
	if f.failAtCall == len(f.addCalls) {
		return nil, errors.New("portal error 500: boom")
	}
	var notAdded []string
	for _, u := range usernames {
		if f.declined[u] {
			notAdded = append(notAdded, u)
			continue
		}
		f.groups[groupID] = append(f.groups[groupID], u)
	}
	return notAdded, nil
}

// fakeVerifier keeps users whose username is listed as active.
type fakeVerifier struct {
	active map[string]bool
	err    error
}

func (v *fakeVerifier) FilterActive(ctx context.Context, users []portal.User) ([]portal.User, error) {
	if v.err != nil {
		return nil, v.err
	}
	var out []portal.User
	for _, u := range users {
		if v.active[u.Username] {
			out = append(out, u)
		}
	}
	return out, nil
}

func govUser(name string) portal.User {
	return portal.User{Username: name + "_governmentofbc", Email: name + "@gov.bc.ca"}
}

func govUsers(n int) []portal.User {
	users := make([]portal.User, n)
	for i := range users {
		users[i] = govUser(fmt.Sprintf("user%03d", i))
	}
	return users
}

func defaultOptions() Options {
	return Options{GroupID: "g1", MaxUsers: 1000, BatchSize: 25}
}

func TestRunScenario(t *testing.T) {
	fp := newFakePortal(
		portal.User{Username: "alice_governmentofbc", Email: "alice@gov.bc.ca"},
		portal.User{Username: "bob_other", Email: "bob@other.org"},
	)

	res, err := New(fp, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.OrgUsers)
	assert.Equal(t, 1, res.GovernmentUsers)
	assert.Equal(t, []string{"alice_governmentofbc"}, res.ToAdd)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, [][]string{{"alice_governmentofbc"}}, fp.addCalls)
	assert.Equal(t, 1000, fp.maxSeen)
}

func TestRunIsIdempotent(t *testing.T) {
	fp := newFakePortal(govUsers(40)...)
	s := New(fp, defaultOptions())

	first, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.ToAdd, 40)
	assert.Equal(t, 2, first.Batches)

	second, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.ToAdd)
	assert.Equal(t, 0, second.Batches)
	assert.Len(t, fp.addCalls, 2)
}

func TestRunSkipsExistingMembers(t *testing.T) {
	fp := newFakePortal(govUser("a"), govUser("b"), govUser("c"))
	fp.groups["g1"] = []string{"B_GOVERNMENTOFBC"}

	res, err := New(fp, defaultOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a_governmentofbc", "c_governmentofbc"}, res.ToAdd)
}

func TestRunAuthFailureStops(t *testing.T) {
	fp := newFakePortal(govUser("a"))
	fp.errOnAuth = fmt.Errorf("%w for svc: bad password", portal.ErrAuth)

	_, err := New(fp, defaultOptions()).Run(context.Background())
	assert.ErrorIs(t, err, portal.ErrAuth)
	assert.Empty(t, fp.addCalls)
}

func TestRunGroupNotFoundHaltsBeforeMembership(t *testing.T) {
	fp := newFakePortal(govUser("a"))
	opts := defaultOptions()
	opts.GroupID = "missing"

	res, err := New(fp, opts).Run(context.Background())
	require.ErrorIs(t, err, portal.ErrGroupNotFound)
	assert.Nil(t, res.Group)
	assert.Nil(t, res.ToAdd)
	assert.Empty(t, fp.addCalls)
}

func TestRunBatchFailureStopsRemainingBatches(t *testing.T) {
	fp := newFakePortal(govUsers(60)...)
	fp.failAtCall = 2

	res, err := New(fp, defaultOptions()).Run(context.Background())

	var batchErr *BatchAddError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Len(t, batchErr.Usernames, 25)
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, fp.addCalls, 2, "third batch must not be attempted")
	assert.Len(t, fp.groups["g1"], 25, "first batch stays applied")
}

func TestRunDryRunMakesNoCalls(t *testing.T) {
	fp := newFakePortal(govUsers(30)...)
	opts := defaultOptions()
	opts.DryRun = true

	res, err := New(fp, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.ToAdd, 30)
	assert.Equal(t, 0, res.Batches)
	assert.Empty(t, fp.addCalls)
}

func TestRunSurfacesNotAdded(t *testing.T) {
	fp := newFakePortal(govUser("a"), govUser("b"))
	fp.declined["b_governmentofbc"] = true

	res, err := New(fp, defaultOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b_governmentofbc"}, res.NotAdded)
}

func TestRunWithVerifier(t *testing.T) {
	fp := newFakePortal(govUser("a"), govUser("b"), govUser("c"))
	opts := defaultOptions()
	opts.Verifier = &fakeVerifier{active: map[string]bool{"a_governmentofbc": true, "c_governmentofbc": true}}

	res, err := New(fp, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.GovernmentUsers)
	assert.Equal(t, []string{"a_governmentofbc", "c_governmentofbc"}, res.ToAdd)
}

func TestRunVerifierError(t *testing.T) {
	fp := newFakePortal(govUser("a"))
	opts := defaultOptions()
	opts.Verifier = &fakeVerifier{err: errors.New("ldap down")}

	_, err := New(fp, opts).Run(context.Background())
	assert.ErrorContains(t, err, "ldap down")
	assert.Empty(t, fp.addCalls)
}

func TestRunWritesReport(t *testing.T) {
	fp := newFakePortal(govUser("a"), govUser("b"))
	dir := t.TempDir()
	opts := defaultOptions()
	opts.ReportPath = dir
	opts.DryRun = true

	s := New(fp, opts)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users_g1_1700000000000.yml"), res.ReportPath)

	data, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)

	var got []string
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, res.ToAdd, got)
}

func TestRunWithoutBatchSizeUsesPortalLimit(t *testing.T) {
	fp := newFakePortal(govUsers(30)...)

	res, err := New(fp, Options{GroupID: "g1", MaxUsers: 1000}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	require.Len(t, fp.addCalls, 2)
	assert.Len(t, fp.addCalls[0], 25)
	assert.Len(t, fp.addCalls[1], 5)
	assert.Len(t, fp.groups["g1"], 30)
}

func TestRunSkipsReportWhenNothingToAdd(t *testing.T) {
	fp := newFakePortal(govUser("a"))
	fp.groups["g1"] = []string{"a_governmentofbc"}
	dir := t.TempDir()
	opts := defaultOptions()
	opts.ReportPath = dir

	res, err := New(fp, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ToAdd)
	assert.Empty(t, res.ReportPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
