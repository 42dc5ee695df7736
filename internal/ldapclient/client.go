package ldapclient

import (
	"fmt"
	"net"
	"strings"

	"github.com/bcgov/ago-group-sync/tools"
	"github.com/go-ldap/ldap/v3"
)

type Settings struct {
	Server   string
	Port     string
	User     string
	Password string
	BaseDN   string
}

type LDAPClient struct {
	Conn   *ldap.Conn
	BaseDN string
}

// Connect resolves the LDAP hostname to an IP and returns a bound LDAPClient.
func Connect(s Settings) (*LDAPClient, error) {
	server := strings.TrimSpace(s.Server)
	port := s.Port
	if port == "" {
		port = "389"
	}

	// Resolve DNS
	addrs, err := net.LookupHost(server)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("DNS lookup failed for %s: %v", server, err)
	}
	ip := addrs[0]

	tools.Log.WithFields(map[string]interface{}{
		"host": server,
		"ip":   ip,
		"port": port,
	}).Debug("Resolved LDAP server IP")

	return ConnectWithIP(ip, port, s)
}

// ConnectWithIP connects to a specific LDAP IP and returns a bound client.
func ConnectWithIP(ip, port string, s Settings) (*LDAPClient, error) {
	url := fmt.Sprintf("ldap://%s", net.JoinHostPort(ip, port))
	tools.Log.WithField("url", url).Debug("Connecting to resolved LDAP IP")

	conn, err := ldap.DialURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP: %w", err)
	}

	if err := conn.Bind(strings.TrimSpace(s.User), strings.TrimSpace(s.Password)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind: %w", err)
	}

	tools.Log.Debug("Successfully bound to LDAP")

	return &LDAPClient{
		Conn:   conn,
		BaseDN: strings.TrimSpace(s.BaseDN),
	}, nil
}

// Close cleans up the connection
func (c *LDAPClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		tools.Log.Debug("Closed LDAP connection")
	}
}
