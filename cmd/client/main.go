// Command client drives the workhub auth API from a terminal. Commands run
// in order inside one process, so the refresh cookie obtained by login is
// available to the commands that follow it.
//
//	client --email a@example.com --password secret1 login me online
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Skotchmaster/workhub/internal/config"
	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/pkg/authclient"
	"github.com/Skotchmaster/workhub/pkg/identitycache"
	"github.com/Skotchmaster/workhub/pkg/rtclient"
)

type options struct {
	server   string
	cache    string
	timeout  time.Duration
	logLevel string

	email    string
	password string
	otp      string
	name     string
}

var commands = map[string]string{
	"signup":  "create an account (--email, --password)",
	"verify":  "confirm the emailed code (--email, --otp)",
	"resend":  "send a new code (--email)",
	"login":   "sign in (--email, --password)",
	"me":      "print the current profile",
	"rename":  "change the display name (--name)",
	"refresh": "rotate the refresh cookie",
	"logout":  "end the session",
	"online":  "follow the online users list until interrupted",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var o options
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.server, "server", config.EnvDefault("WORKHUB_URL", "http://localhost:8080"), "API base URL")
	fs.StringVar(&o.cache, "cache", defaultCachePath(), "identity cache file (\"\" keeps it in memory)")
	fs.DurationVar(&o.timeout, "timeout", config.EnvDurationDefault("CLIENT_TIMEOUT", authclient.DefaultTimeout), "HTTP timeout")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	fs.StringVarP(&o.email, "email", "e", "", "account email")
	fs.StringVarP(&o.password, "password", "p", "", "account password")
	fs.StringVar(&o.otp, "otp", "", "one-time code")
	fs.StringVar(&o.name, "name", "", "display name")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cmds := fs.Args()
	if len(cmds) == 0 {
		usage(stderr, fs)
		return errors.New("no command given")
	}
	for _, c := range cmds {
		if _, ok := commands[c]; !ok {
			return fmt.Errorf("unknown command %q", c)
		}
	}

	if o.password == "" && needsPassword(cmds) {
		pw, err := promptPassword(stderr)
		if err != nil {
			return err
		}
		o.password = pw
	}

	logger := logging.NewWithWriter(stderr, o.logLevel)

	var cache identitycache.Cache = &identitycache.Memory{}
	if o.cache != "" {
		if err := os.MkdirAll(filepath.Dir(o.cache), 0o700); err != nil {
			return fmt.Errorf("cache dir: %w", err)
		}
		sc, err := identitycache.OpenSQLite(o.cache)
		if err != nil {
			return err
		}
		defer sc.Close()
		cache = sc
	}

	client, err := authclient.NewClient(ctx, o.server,
		authclient.WithIdentityCache(cache),
		authclient.WithTimeout(o.timeout),
		authclient.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if u := client.Session().User(); u != nil {
		fmt.Fprintf(stderr, "cached identity: %s\n", u.Email)
	}
	if err := client.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	out := json.NewEncoder(stdout)
	out.SetIndent("", "  ")

	for _, c := range cmds {
		if err := runCommand(ctx, c, client, o, out); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
	}
	return nil
}

func runCommand(ctx context.Context, cmd string, c *authclient.Client, o options, out *json.Encoder) error {
	switch cmd {
	case "signup":
		res, err := c.Signup(ctx, o.email, o.password)
		if err != nil {
			return err
		}
		return out.Encode(res)
	case "verify":
		u, err := c.VerifyOTP(ctx, o.email, o.otp)
		if err != nil {
			return err
		}
		return out.Encode(u)
	case "resend":
		return c.ResendOTP(ctx, o.email)
	case "login":
		u, err := c.Login(ctx, o.email, o.password)
		if err != nil {
			return err
		}
		return out.Encode(u)
	case "me":
		u, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return out.Encode(u)
	case "rename":
		u, err := c.UpdateMe(ctx, o.name)
		if err != nil {
			return err
		}
		return out.Encode(u)
	case "refresh":
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		return out.Encode(map[string]int64{"expiresAt": c.Session().ExpiresAt()})
	case "logout":
		return c.Logout(ctx)
	case "online":
		return followOnline(ctx, c, o.server, out)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func followOnline(ctx context.Context, c *authclient.Client, server string, out *json.Encoder) error {
	u := c.Session().User()
	if u == nil {
		return errors.New("not signed in")
	}
	wsURL, err := websocketURL(server)
	if err != nil {
		return err
	}
	conn, err := rtclient.Dial(ctx, wsURL, u.ID, rtclient.WithAccessToken(c.Session().AccessToken()))
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case ids := <-conn.OnlineUsers():
			if err := out.Encode(map[string][]string{"online": ids}); err != nil {
				return err
			}
		case <-conn.Done():
			return conn.Err()
		case <-ctx.Done():
			return nil
		}
	}
}

func needsPassword(cmds []string) bool {
	for _, c := range cmds {
		if c == "login" || c == "signup" {
			return true
		}
	}
	return false
}

func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(w, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "workhub", "identity.db")
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: client [flags] command...")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range []string{"signup", "verify", "resend", "login", "me", "rename", "refresh", "logout", "online"} {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name])
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
