// Command sessionctl inspects or ends the session persisted by storepanel.
//
//	sessionctl status [-offline]   report the stored credential and, unless
//	                               -offline, who the storefront says it belongs to
//	sessionctl logout              end the session through the running server,
//	                               or erase the stored credential if none answers
//
// It reads the same STOREPANEL_* environment as the server. status never
// modifies the stored credential.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/ericfisherdev/storepanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/storepanel/internal/adapter/driven/storefront"
	"github.com/ericfisherdev/storepanel/internal/config"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

const usage = "usage: sessionctl status [-offline] | logout"

// serverTimeout bounds the logout request to the running server.
const serverTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet("sessionctl "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	offline := false
	switch args[0] {
	case "status":
		fs.BoolVar(&offline, "offline", false, "report the stored credential without contacting the storefront")
	case "logout":
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if err := fs.Parse(args[1:]); err != nil || fs.NArg() > 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "sessionctl:", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(stderr, "sessionctl:", err)
		return 1
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	if _, err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		fmt.Fprintln(stderr, "sessionctl:", err)
		return 1
	}
	creds := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey())

	if args[0] == "logout" {
		return logout(ctx, cfg, creds, stdout, stderr)
	}

	var client driven.StorefrontAPI
	if !offline {
		c, err := storefront.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, logger)
		if err != nil {
			fmt.Fprintln(stderr, "sessionctl:", err)
			return 1
		}
		client = c
	}
	return status(ctx, creds, client, stdout, stderr)
}

// status reports the stored credential. With a nil api it stops at whether a
// credential is stored. A rejected or unverifiable credential is reported and
// left in place; the server clears it on its next revalidation.
func status(ctx context.Context, creds driven.CredentialStore, api driven.StorefrontAPI, stdout, stderr io.Writer) int {
	cred, err := creds.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "sessionctl: reading stored credential:", err)
		return 1
	}
	if cred.IsZero() {
		fmt.Fprintln(stdout, "signed out")
		return 0
	}
	if api == nil {
		fmt.Fprintln(stdout, "credential stored (identity not checked)")
		return 0
	}

	identity, err := api.CurrentUser(ctx, cred)
	switch {
	case errors.Is(err, driven.ErrUnauthorized):
		fmt.Fprintln(stdout, "credential stored but rejected by the storefront")
		return 1
	case err != nil:
		fmt.Fprintln(stderr, "sessionctl: could not verify stored credential:", err)
		return 1
	}
	printIdentity(stdout, identity)
	return 0
}

// logout asks the running server to end its session so its in-memory state
// and the stored credential change together. When no server answers, the
// stored credential is erased directly.
func logout(ctx context.Context, cfg *config.Config, creds driven.CredentialStore, stdout, stderr io.Writer) int {
	err := serverLogout(ctx, &http.Client{Timeout: serverTimeout}, serverURL(cfg.ListenAddr))
	if err == nil {
		fmt.Fprintln(stdout, "signed out")
		return 0
	}

	var unreachable *serverUnreachableError
	if !errors.As(err, &unreachable) {
		fmt.Fprintln(stderr, "sessionctl: server refused logout:", err)
		return 1
	}

	if err := creds.Clear(ctx); err != nil {
		fmt.Fprintln(stderr, "sessionctl: clearing stored credential:", err)
		return 1
	}
	fmt.Fprintln(stdout, "signed out (server not running; stored credential erased)")
	return 0
}

type serverUnreachableError struct{ err error }

func (e *serverUnreachableError) Error() string { return "server unreachable: " + e.err.Error() }
func (e *serverUnreachableError) Unwrap() error { return e.err }

// serverLogout sends DELETE /api/v1/session to baseURL and requires a 2xx.
func serverLogout(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/api/v1/session", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &serverUnreachableError{err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// serverURL maps the listen address onto one this host can dial; bind-all
// hosts become loopback.
func serverURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func printIdentity(w io.Writer, identity *model.Identity) {
	fmt.Fprintf(w, "signed in as %s <%s> (%s)\n", identity.Name, identity.Email, identity.Role)
}
