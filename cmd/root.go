package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"cxcli/internal/auth"
	"cxcli/internal/cache"
	"cxcli/internal/credentials"
	"cxcli/internal/dynacmd"
	"cxcli/internal/manifest"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitNotConfigured = 2
	ExitRequestFailed = 255
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// ExitError carries the process exit code of a failed invocation.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// globalFlags precede the service name on the command line.
type globalFlags struct {
	verbose           bool
	configure         bool
	updateSpecs       bool
	updateUnpublished bool
	configPath        string
}

func (g *globalFlags) bind(fs *pflag.FlagSet) {
	fs.BoolVar(&g.verbose, "verbose", false, "increase output verbosity")
	fs.BoolVar(&g.configure, "configure", false, "Configure credentials")
	fs.BoolVar(&g.updateSpecs, "update-specs", false, "Update OpenAPI specs and CLI commands")
	fs.BoolVar(&g.updateUnpublished, "update-unpublished-specs", false, "Update specs of unpublished services")
	fs.StringVar(&g.configPath, "config", "", "config file (default ~/.cxcli/config.yaml)")
	_ = fs.MarkHidden("update-unpublished-specs")
}

// parseGlobalFlags reads the global flags leading args. Scanning stops at
// the first argument that is not one of them.
func parseGlobalFlags(args []string) *globalFlags {
	g := &globalFlags{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--verbose":
			g.verbose = true
		case arg == "--configure":
			g.configure = true
		case arg == "--update-specs":
			g.updateSpecs = true
		case arg == "--update-unpublished-specs":
			g.updateUnpublished = true
		case arg == "--config" && i+1 < len(args):
			i++
			g.configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			g.configPath = strings.TrimPrefix(arg, "--config=")
		default:
			return g
		}
	}
	return g
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	s := streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, os.Args[1:], s, nil)
	}()

	select {
	case err := <-done:
		return report(s.err, err)
	case <-sigs:
		cancel()
		fmt.Fprintln(s.err, "SIGINT received")
		return ExitRequestFailed
	}
}

// run executes one invocation. client, when nil, is built from the
// configured timeout.
func run(ctx context.Context, args []string, s streams, client *http.Client) error {
	g := parseGlobalFlags(args)
	a, err := newApp(g, s, client)
	if err != nil {
		return err
	}
	defer a.Close()

	if g.configure {
		if err := a.configure(ctx); err != nil {
			return err
		}
	}
	synced := g.configure || g.updateSpecs || g.updateUnpublished
	if g.updateSpecs || !a.hasSpecs(ctx) {
		if err := a.updateSpecs(ctx); err != nil {
			return err
		}
		synced = true
	}
	if g.updateUnpublished {
		if err := a.updateUnpublishedSpecs(ctx); err != nil {
			return err
		}
	}
	if synced {
		return nil
	}

	root, err := a.rootCmd(ctx, g, args)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) hasSpecs(ctx context.Context) bool {
	if _, err := a.store.LoadIndex(ctx); err != nil {
		if !errors.Is(err, cache.ErrNoIndex) {
			a.logger.Warn("failed to read spec index", "err", err)
		}
		return false
	}
	keys, err := a.store.GroupKeys()
	return err == nil && len(keys) > 0
}

func (a *app) rootCmd(ctx context.Context, g *globalFlags, args []string) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "cx",
		Short:         "cxcli - CLI for Citrix Cloud",
		Long:          `cx calls any operation of the Citrix Cloud REST APIs. Commands are generated from the cached OpenAPI specs; refresh them with --update-specs.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	g.bind(root.PersistentFlags())

	m, err := manifest.NewLoader(a.store, a.logger).Load(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}
	executor := dynacmd.NewExecutor(a.authorizer, a.client, a.cfg.UserAgent, a.out, a.logger)
	builder := dynacmd.NewBuilder(m, executor, a.customerID(), a.logger)
	for _, cmd := range builder.BuildCommands() {
		root.AddCommand(cmd)
	}
	return root, nil
}

// exitError classifies err into an exit code.
func exitError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var transportErr *dynacmd.TransportError
	switch {
	case errors.Is(err, credentials.ErrNotConfigured):
		return &ExitError{Code: ExitNotConfigured, Err: err}
	case errors.As(err, &transportErr):
		return &ExitError{Code: ExitRequestFailed, Err: err}
	}
	return &ExitError{Code: ExitFailure, Err: err}
}

// report prints the cause of err and returns the exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	exitErr := exitError(err)
	var authErr *auth.AuthenticationError
	switch {
	case exitErr.Code == ExitNotConfigured:
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf(
			"Please configure CLI credentials before use: cx --configure\n"+
				"Or provide configuration using environment variables: %s, %s, and %s",
			credentials.EnvCustomerID, credentials.EnvClientID, credentials.EnvClientSecret)))
	case errors.As(err, &authErr):
		fmt.Fprintln(w, errorStyle.Render("Authentication failed. Please check the credentials: "+err.Error()))
	default:
		fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
	}
	return exitErr.Code
}
