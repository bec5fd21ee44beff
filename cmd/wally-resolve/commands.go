package main

import (
	"fmt"

	"github.com/spf13/cobra"

	gowally "github.com/albertocavalcante/go-wally"
	"github.com/albertocavalcante/go-wally/internal/config"
	"github.com/albertocavalcante/go-wally/internal/server"
	"github.com/albertocavalcante/go-wally/label"
)

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <author/name[@constraint]>...",
		Short: "Resolve references to the newest compatible versions",
		Long:  "Resolve each reference concurrently. A reference without a constraint resolves to the newest stable release.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]label.PackageRef, 0, len(args))
			for _, arg := range args {
				ref, err := label.ParsePackageRef(arg)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}

			results, err := a.pool.ResolveAll(cmd.Context(), a.cfg.Registry, refs)
			if err != nil {
				return err
			}

			resolved := make([]*gowally.Resolution, 0, len(results))
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(a.stderr, "%s: %s\n", r.Ref, r.Err)
					continue
				}
				resolved = append(resolved, r.Resolution)
			}

			if err := a.write(resolved); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d references could not be resolved", failed, len(refs))
			}
			return nil
		},
	}
}

type versionsOutput struct {
	Registry string   `json:"registry" yaml:"registry"`
	Package  string   `json:"package" yaml:"package"`
	Versions []string `json:"versions" yaml:"versions"`
}

func (a *app) versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <author/name>",
		Short: "List published versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := label.ParsePackageRef(args[0])
			if err != nil {
				return err
			}
			versions, servedBy, err := a.pool.Versions(cmd.Context(), a.cfg.Registry, ref.Author(), ref.Name())
			if err != nil {
				return err
			}
			return a.write(versionsOutput{Registry: servedBy, Package: ref.FullName(), Versions: versions})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <author/name@version>",
		Short: "Show the published manifest of one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := label.ParsePackageRef(args[0])
			if err != nil {
				return err
			}
			if !ref.HasConstraint() {
				return fmt.Errorf("%s: a version is required, e.g. %s@1.0.0", ref, ref)
			}
			info, err := a.pool.Info(cmd.Context(), a.cfg.Registry, ref.Author(), ref.Name(), ref.Constraint())
			if err != nil {
				return err
			}
			return a.write(info)
		},
	}
}

type authorsOutput struct {
	Registry string   `json:"registry" yaml:"registry"`
	Authors  []string `json:"authors" yaml:"authors"`
}

func (a *app) authorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authors",
		Short: "List the authors published in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolver, err := a.pool.Resolver(a.cfg.Registry)
			if err != nil {
				return err
			}
			authors, ok := resolver.PackageAuthors(cmd.Context())
			if !ok {
				return fmt.Errorf("listing authors: %w", gowally.ErrRegistryUnavailable)
			}
			return a.write(authorsOutput{Registry: resolver.Index().Locator().URL(), Authors: authors})
		},
	}
}

type packagesOutput struct {
	Registry string   `json:"registry" yaml:"registry"`
	Author   string   `json:"author" yaml:"author"`
	Packages []string `json:"packages" yaml:"packages"`
}

func (a *app) packagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packages <author>",
		Short: "List the packages published by an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := a.pool.Resolver(a.cfg.Registry)
			if err != nil {
				return err
			}
			names, ok := resolver.PackageNames(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("author %q not found in %s", args[0], resolver.Index().Locator())
			}
			return a.write(packagesOutput{Registry: resolver.Index().Locator().URL(), Author: args[0], Packages: names})
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the resolver over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := server.New(a.pool, a.cfg.Registry,
				server.WithGatherer(a.metrics),
				server.WithLogger(a.logger))
			return srv.ListenAndServe(cmd.Context(), a.cfg.Server.Addr)
		},
	}
	cmd.Flags().String("addr", config.Defaults().Server.Addr, "listen address")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
