// Command pomo is the offline-first CLI client for the PomoSync service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/client/api"
	"github.com/akulinin/pomosync/internal/client/cache"
	"github.com/akulinin/pomosync/internal/client/connectivity"
	"github.com/akulinin/pomosync/internal/client/state"
	"github.com/akulinin/pomosync/internal/client/syncer"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pomosync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pomosync")
}

func cachePath() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "pomosync", "cache.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pomosync", "cache.db")
}

// fileTokens persists the session token under the config dir.
type fileTokens struct{ path string }

func newFileTokens() *fileTokens {
	return &fileTokens{path: filepath.Join(cfgDir(), "token.json")}
}

func (t *fileTokens) Token() string {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return ""
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return ""
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return ""
	}
	return tf.AccessToken
}

func (t *fileTokens) Save(token string) error {
	// The expiry claim is read without verification; only the server needs
	// to validate the signature.
	exp := time.Now().Add(15 * time.Minute)
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.Create(t.path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: token, ExpiresAt: exp})
}

func (t *fileTokens) Clear() error {
	err := os.Remove(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- wiring ----

type app struct {
	m     *state.Manager
	store *cache.Store
}

func newApp(base string, verbose bool) (*app, error) {
	log := zap.NewNop()
	if verbose {
		log, _ = zap.NewDevelopment()
	}

	tokens := newFileTokens()
	store, err := cache.Open(cachePath())
	if err != nil {
		return nil, err
	}

	client := api.New(base, tokens.Token, log)
	net := connectivity.New(true, log)
	sync := syncer.New(client, store, log)

	m := state.New(state.Options{
		API:    client,
		Cache:  store,
		Sync:   sync,
		Net:    net,
		Tokens: tokens,
		Log:    log,
	})
	return &app{m: m, store: store}, nil
}

func (a *app) close() {
	a.m.Close()
	_ = a.store.Close()
}

// ---- output ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `pomo CLI
Usage:
  pomo [-addr URL] [-v] <cmd> [args]

Commands:
  version
  register     -u <username> -p <password> -email <email> [-name <display name>]
  login        -u <username> -p <password>
  logout
  whoami
  list                                          (configurations)
  save         -name <name>                     (current cycles as new configuration)
  rm           -id <configuration id>
  quick-access -ids <id,id,...>
  sync
  run          [-id <configuration id>]         (interactive timer)
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against a freshly bootstrapped state manager.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("pomo %s (%s)\n", version, buildDate)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(*addr, *verbose)
	if err != nil {
		fail(err)
	}
	defer a.close()

	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		email := fs.String("email", "", "email")
		name := fs.String("name", "", "display name")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" || *email == "" {
			fmt.Fprintln(os.Stderr, "need -u, -p and -email")
			os.Exit(1)
		}
		if err := a.m.Register(ctx, api.RegisterRequest{
			Username: *u, Password: *p, Email: *email, DisplayName: *name,
		}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		if err := a.m.Login(ctx, *u, *p); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "logout":
		if err := a.m.Logout(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whoami":
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		snap := a.m.Snapshot()
		if snap.User == nil {
			fmt.Println("not signed in")
			return
		}
		printJSON(snap.User)

	case "list":
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		type row struct {
			ID, Name, Kind string
			Cycles         int
		}
		var rows []row
		for _, cfg := range a.m.Snapshot().Configurations {
			rows = append(rows, row{ID: cfg.ID, Name: cfg.Name, Kind: cfg.Kind.String(), Cycles: len(cfg.Cycles)})
		}
		printJSON(rows)

	case "save":
		fs := flag.NewFlagSet("save", flag.ExitOnError)
		name := fs.String("name", "", "configuration name")
		_ = fs.Parse(flag.Args()[1:])
		if *name == "" {
			fmt.Fprintln(os.Stderr, "need -name")
			os.Exit(1)
		}
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		saved, err := a.m.SaveConfiguration(ctx, *name)
		if err != nil {
			fail(err)
		}
		printJSON(saved)

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		id := fs.String("id", "", "configuration id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		if err := a.m.DeleteConfiguration(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "quick-access":
		fs := flag.NewFlagSet("quick-access", flag.ExitOnError)
		ids := fs.String("ids", "", "comma-separated configuration ids")
		_ = fs.Parse(flag.Args()[1:])
		if *ids == "" {
			fmt.Fprintln(os.Stderr, "need -ids")
			os.Exit(1)
		}
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		if err := a.m.SetQuickAccess(ctx, strings.Split(*ids, ",")); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "sync":
		if err := a.m.Bootstrap(ctx); err != nil {
			fail(err)
		}
		if err := a.m.SyncNow(ctx); err != nil {
			fail(err)
		}
		snap := a.m.Snapshot()
		fmt.Printf("%s, %d configurations\n", snap.SyncStatus, len(snap.Configurations))

	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		id := fs.String("id", "", "configuration id (default: first built-in)")
		_ = fs.Parse(flag.Args()[1:])
		// The timer must run even when bootstrap fails; the defaults are
		// always available.
		_ = a.m.Bootstrap(ctx)
		if *id != "" && !a.m.SetConfiguration(*id) {
			fail(fmt.Errorf("unknown configuration %q", *id))
		}
		runTimer(a.m)

	default:
		usage()
	}
}

// runTimer drives the countdown in the foreground until interrupted.
func runTimer(m *state.Manager) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m.Start()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Pause()
			fmt.Println("\npaused")
			return
		case <-tick.C:
			snap := m.Snapshot()
			label := ""
			for _, c := range snap.Cycles {
				if c.ID == snap.CurrentCycleID {
					label = c.Label
				}
			}
			fmt.Printf("\r%-12s %s  ", label, formatClock(snap.TimeRemaining))
		}
	}
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
