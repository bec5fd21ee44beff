// Command wally-resolve resolves Wally package references against a registry.
//
// Usage:
//
//	wally-resolve resolve roblox/roact@^1.4.0 evaera/promise@^4.0.0
//	wally-resolve versions roblox/roact
//	wally-resolve info roblox/roact@1.4.4
//	wally-resolve authors
//	wally-resolve packages roblox
//	wally-resolve serve --addr :8080
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	gowally "github.com/albertocavalcante/go-wally"
	"github.com/albertocavalcante/go-wally/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout, os.Stderr)
	err := a.execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app holds the state of one command line invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	v       *viper.Viper
	cfgFile string

	cfg     config.Config
	logger  *slog.Logger
	metrics *prometheus.Registry
	tracer  *sdktrace.TracerProvider
	pool    *gowally.Pool
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		v:      viper.New(),
	}
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:           "wally-resolve",
		Short:         "Resolve Wally packages against a registry index",
		Long:          "wally-resolve reads a Wally registry index on GitHub, queries its metadata API and picks package versions that satisfy semver constraints.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./"+config.LocalFile+" or ~/.config/"+config.AppDir+"/config.yaml)")
	flags.String("registry", defaults.Registry, "registry to resolve against")
	flags.String("token", "", "GitHub token for reading the index (env: WALLY_TOKEN, GITHUB_TOKEN)")
	flags.String("github-api", defaults.GitHubAPI, "GitHub REST API base URL")
	flags.StringP("output", "o", defaults.Output, "output format: json|yaml")
	flags.String("log-level", defaults.Log.Level, "log level: debug|info|warn|error")
	flags.Bool("trace", false, "print OpenTelemetry spans to stderr")

	_ = a.v.BindPFlag("registry", flags.Lookup("registry"))
	_ = a.v.BindPFlag("token", flags.Lookup("token"))
	_ = a.v.BindPFlag("github_api", flags.Lookup("github-api"))
	_ = a.v.BindPFlag("output", flags.Lookup("output"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("trace", flags.Lookup("trace"))

	root.AddCommand(
		a.resolveCmd(),
		a.versionsCmd(),
		a.infoCmd(),
		a.authorsCmd(),
		a.packagesCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads configuration and builds the resolver pool.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return err
	}

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.Options(),
		gowally.WithLogger(a.logger),
		gowally.WithRegisterer(a.metrics),
		// One-shot commands read the config on first use anyway.
		gowally.WithBackgroundRefresh(cmd.Name() == "serve"),
	)

	if cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(a.stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("creating trace exporter: %w", err)
		}
		a.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		opts = append(opts, gowally.WithTracerProvider(a.tracer))
	}

	a.pool, err = gowally.NewPool(opts...)
	return err
}

func (a *app) close() error {
	var errs []error
	if a.pool != nil {
		a.pool.Wait()
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
