// Package idir checks portal accounts against the IDIR Active Directory.
package idir

import (
	"context"
	"fmt"
	"strings"

	"github.com/bcgov/ago-group-sync/internal/ldapclient"
	"github.com/bcgov/ago-group-sync/internal/portal"
	"github.com/bcgov/ago-group-sync/tools"
	"github.com/go-ldap/ldap/v3"
)

const (
	usernameMarker = "_governmentofbc"

	// lookupChunk bounds the number of accounts per OR filter.
	lookupChunk = 25
)

// Searcher is the part of *ldap.Conn the verifier needs.
type Searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

type Verifier struct {
	conn   Searcher
	baseDN string
}

func NewVerifier(client *ldapclient.LDAPClient) *Verifier {
	return &Verifier{conn: client.Conn, baseDN: client.BaseDN}
}

// AccountName derives the IDIR sAMAccountName from a portal username,
// e.g. "JSMITH_governmentofbc" -> "jsmith".
func AccountName(username string) string {
	name, _, found := strings.Cut(username, usernameMarker)
	if !found {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// FilterActive keeps users whose IDIR account exists and is enabled, in
// input order.
func (v *Verifier) FilterActive(ctx context.Context, users []portal.User) ([]portal.User, error) {
	var names []string
	for _, u := range users {
		if n := AccountName(u.Username); n != "" {
			names = append(names, n)
		}
	}

	enabled := make(map[string]bool, len(names))
	for _, chunk := range tools.Chunk(names, lookupChunk) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := v.lookup(chunk, enabled); err != nil {
			return nil, err
		}
	}

	var active []portal.User
	for _, u := range users {
		name := AccountName(u.Username)
		if enabled[name] {
			active = append(active, u)
			continue
		}
		tools.Log.WithFields(map[string]interface{}{
			"user": u.Username,
			"idir": name,
		}).Info("Skipping account with no enabled IDIR entry")
	}
	return active, nil
}

func (v *Verifier) lookup(names []string, enabled map[string]bool) error {
	req := ldap.NewSearchRequest(
		v.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		AccountFilter(names),
		[]string{"sAMAccountName", "userAccountControl"},
		nil,
	)

	result, err := v.conn.Search(req)
	if err != nil {
		return fmt.Errorf("LDAP search failed: %w", err)
	}

	for _, entry := range result.Entries {
		name := strings.ToLower(entry.GetAttributeValue("sAMAccountName"))
		if tools.AccountEnabled(entry.GetAttributeValue("userAccountControl")) {
			enabled[name] = true
		}
	}
	return nil
}

// AccountFilter builds an LDAP filter matching user objects with any of the
// given account names.
func AccountFilter(names []string) string {
	var b strings.Builder
	b.WriteString("(&(objectClass=user)(|")
	for _, n := range names {
		fmt.Fprintf(&b, "(sAMAccountName=%s)", ldap.EscapeFilter(n))
	}
	b.WriteString("))")
	return b.String()
}
