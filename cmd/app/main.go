package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcgov/ago-group-sync/internal/config"
	"github.com/bcgov/ago-group-sync/internal/idir"
	"github.com/bcgov/ago-group-sync/internal/ldapclient"
	"github.com/bcgov/ago-group-sync/internal/portal"
	"github.com/bcgov/ago-group-sync/internal/secrets"
	"github.com/bcgov/ago-group-sync/internal/sync"
	"github.com/bcgov/ago-group-sync/tools"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real env vars win over it
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		tools.Log.Fatalf("Failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		tools.Log.Fatalf("Failed to load config: %v", err)
	}

	fset := newFlagSet(cfg)
	if err := fset.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	tools.InitLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(fset.Output(), "invalid arguments: %v\n\n", err)
		fset.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := run(ctx, cfg); err != nil {
		stop()
		tools.Log.Fatalf("Sync failed: %v", err)
	}
	tools.Log.Infof("Finished syncing group in %s", time.Since(start))
}

func newFlagSet(cfg *config.Config) *flag.FlagSet {
	fset := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), "Adds government IDIR users to the specified ArcGIS Online group.\n\nUsage of %s:\n", fset.Name())
		fset.PrintDefaults()
	}

	fset.StringVar(&cfg.Portal.User, "user", cfg.Portal.User, "the ArcGIS Online user to sign in as")
	fset.StringVar(&cfg.Portal.Password, "pwd", cfg.Portal.Password, "the ArcGIS Online user password (required unless -pwd-secret is set)")
	fset.StringVar(&cfg.Sync.GroupID, "group", cfg.Sync.GroupID, "the id of the group to add users to")
	fset.StringVar(&cfg.Portal.URL, "url", cfg.Portal.URL, "the ArcGIS Online organization URL")
	fset.IntVar(&cfg.Sync.MaxUsers, "max-users", cfg.Sync.MaxUsers, "the most organization users to fetch")
	fset.BoolVar(&cfg.Sync.DryRun, "dry-run", cfg.Sync.DryRun, "list users to add without changing the group")
	fset.StringVar(&cfg.Sync.Report, "report", cfg.Sync.Report, "write usernames to add as YAML to this file or directory")
	fset.IntVar(&cfg.Portal.Retries, "retries", cfg.Portal.Retries, "attempts per portal request (1 disables retry)")
	fset.BoolVar(&cfg.Portal.Insecure, "insecure", cfg.Portal.Insecure, "skip TLS certificate verification")
	fset.StringVar(&cfg.PasswordSecret, "pwd-secret", cfg.PasswordSecret, "AWS Secrets Manager secret id holding the password")
	fset.BoolVar(&cfg.LDAP.Verify, "verify-idir", cfg.LDAP.Verify, "only add users with an enabled IDIR account (needs LDAP_* env)")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	return fset
}

func run(ctx context.Context, cfg *config.Config) error {
	password := cfg.Portal.Password
	if password == "" {
		resolver, err := secrets.NewResolver(ctx)
		if err != nil {
			return err
		}
		if password, err = resolver.Password(ctx, cfg.PasswordSecret); err != nil {
			return err
		}
	}

	tools.Log.Infof("Connecting to %s", cfg.Portal.URL)
	client := portal.NewClient(portal.Options{
		URL:      cfg.Portal.URL,
		User:     cfg.Portal.User,
		Password: password,
		Insecure: cfg.Portal.Insecure,
		Timeout:  cfg.Portal.Timeout,
		Retries:  cfg.Portal.Retries,
	})

	opts := sync.Options{
		GroupID:    cfg.Sync.GroupID,
		MaxUsers:   cfg.Sync.MaxUsers,
		BatchSize:  cfg.Sync.BatchSize,
		DryRun:     cfg.Sync.DryRun,
		ReportPath: cfg.Sync.Report,
	}

	if cfg.LDAP.Verify {
		ldapClient, err := ldapclient.Connect(ldapclient.Settings{
			Server:   cfg.LDAP.Server,
			Port:     cfg.LDAP.Port,
			User:     cfg.LDAP.User,
			Password: cfg.LDAP.Password,
			BaseDN:   cfg.LDAP.BaseDN,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to LDAP: %w", err)
		}
		defer ldapClient.Close()
		opts.Verifier = idir.NewVerifier(ldapClient)
	}

	res, err := sync.New(client, opts).Run(ctx)
	if err != nil {
		return err
	}

	added := 0
	if !cfg.Sync.DryRun {
		added = len(res.ToAdd) - len(res.NotAdded)
	}
	tools.LogSyncSummary(cfg.Sync.GroupID, res.GovernmentUsers, added, res.Batches, cfg.Sync.DryRun)
	return nil
}
