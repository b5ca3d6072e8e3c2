// Package cli implements zvctl, the command-line twin of the web console.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zvision-console/internal/backend"
	"zvision-console/internal/logx"
	"zvision-console/internal/session"
)

// ErrNotLoggedIn is returned by commands that need a stored credential.
var ErrNotLoggedIn = errors.New("Not logged in. Run 'zvctl login' first.")

type app struct {
	cfgFile    string
	backendURL string
	jsonOut    bool
	verbose    bool
	timeout    time.Duration

	out io.Writer
	log *zap.Logger

	storage *ViperStorage
	client  *backend.Client
	gate    *session.Gate
}

// NewRootCommand builds the zvctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out, log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "zvctl",
		Short:         "Manage ZVision cameras from the command line",
		Long:          "Log in to the ZVision backend, manage cameras, resolve streams and control detection.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.zvctl.yaml)")
	flags.StringVar(&a.backendURL, "backend", "", "backend API base URL")
	flags.BoolVar(&a.jsonOut, "json", false, "output results as JSON")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log backend calls to stderr")
	flags.DurationVar(&a.timeout, "timeout", 10*time.Second, "backend request timeout")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.camerasCommand(),
		a.streamCommand(),
		a.detectionCommand(),
	)
	return root
}

// Execute runs zvctl and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout)
	root.SetArgs(args)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) setup(ctx context.Context) error {
	if a.verbose {
		logger, err := logx.New("debug", "console")
		if err != nil {
			return err
		}
		a.log = logger
	}

	v, path, err := OpenConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	a.storage = NewViperStorage(v, path)

	baseURL, _ := lo.Coalesce(a.backendURL, v.GetString(keyBackendURL), backend.DefaultBaseURL)
	a.backendURL = baseURL
	a.client = backend.New(backend.Options{
		BaseURL:   baseURL,
		Timeout:   a.timeout,
		UserAgent: "zvctl",
		Observer: func(method, route string, status int, err error, elapsed time.Duration) {
			a.log.Debug("backend call",
				zap.String("method", method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		},
	})
	a.gate = session.NewGate(session.GateOptions{
		Slot:          session.Slot,
		Storage:       a.storage,
		Authenticator: a.client,
		Logger:        a.log,
	})
	if _, err := a.gate.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// authed returns a client carrying the stored credential. A 401 on it clears the
// credential from the config file.
func (a *app) authed(ctx context.Context) (*backend.Client, error) {
	if !a.gate.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	return a.client.WithCredentials(a.gate.For(ctx, session.DiscardCookies{})), nil
}

// explain turns backend failures into the messages shown to the operator.
func explain(err error, fallback string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotLoggedIn):
		return err
	case backend.IsUnauthorized(err):
		return errors.New(session.MsgSessionExpired)
	case backend.KindOf(err) == backend.KindNetwork:
		return fmt.Errorf("%s: %w", session.MsgNetwork, err)
	}
	if msg := backend.MessageOf(err); msg != "" {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", fallback, err)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var _ session.Storage = (*ViperStorage)(nil)
