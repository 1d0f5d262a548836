package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openpackage/openpackage/internal/config"
	"github.com/openpackage/openpackage/internal/gitfetch"
	"github.com/openpackage/openpackage/internal/github"
	ogGraph "github.com/openpackage/openpackage/internal/graph"
	"github.com/openpackage/openpackage/internal/manifest"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/ociregistry"
	"github.com/openpackage/openpackage/internal/registryclient"
	"github.com/openpackage/openpackage/internal/resolve"
	"github.com/openpackage/openpackage/internal/semverx"
	"github.com/openpackage/openpackage/internal/source"
	"github.com/openpackage/openpackage/internal/workspace"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [workspace-root]",
	Short: "Walk the dependency graph rooted at the workspace manifest",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	_, graph, err := resolveWorkspace(cmd.Context(), root)
	if err != nil {
		return err
	}

	cmd.Printf("resolved %d package(s) across %d wave(s)\n", len(graph.Nodes), graph.WaveCount)
	for _, id := range graph.InstallOrder {
		node := graph.Nodes[id]
		cmd.Printf("  [%d] %s %s\n", node.Wave, node.DisplayName, node.ResolvedVersion)
	}
	for _, w := range graph.Warnings {
		cmd.Printf("warning: %s\n", w)
	}

	if len(graph.Cycles) > 0 {
		for _, cycle := range graph.Cycles {
			ids := make([]ogGraph.NodeID, len(cycle))
			for i, id := range cycle {
				ids[i] = ogGraph.NodeID(id)
			}
			fmt.Fprint(cmd.OutOrStdout(), ogGraph.NewCycleError(ids).FormatCycle(globalNoColor))
		}
	}

	return nil
}

// resolveWorkspace loads the workspace manifest at root and walks its
// dependency graph, returning the loaded config alongside the result so
// callers (install) can reuse both without resolving twice.
func resolveWorkspace(ctx context.Context, rootArg string) (config.Options, *model.WaveGraph, error) {
	paths, err := workspace.New(rootArg)
	if err != nil {
		return config.Options{}, nil, err
	}
	root := paths.Root()

	opts, err := config.Load(root)
	if err != nil {
		return config.Options{}, nil, err
	}
	if err := paths.EnsureCacheDir(); err != nil {
		return opts, nil, err
	}

	m, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		return opts, nil, fmt.Errorf("failed to load workspace manifest: %w", err)
	}

	roots := make([]source.Declaration, len(m.Dependencies))
	for i, d := range m.Dependencies {
		roots[i] = source.Declaration{Name: d.Name, Constraint: d.Constraint, URL: d.URL, Path: d.Path}
	}

	httpClient := github.NewHTTPClient(github.TokenFromEnv())
	gitCache := gitfetch.NewCache(&gitfetch.DefaultCloner{}, paths.CacheDir())
	oci := ociregistry.NewPuller(paths.CacheDir())

	registryEntries := map[string]registryclient.Entry{}
	registryIndexPath := filepath.Join(paths.Root(), ".openpackage", "registry.yml")
	loaded, err := registryclient.LoadIndexFile(registryIndexPath)
	switch {
	case err == nil:
		registryEntries = loaded
	case errors.Is(err, fs.ErrNotExist):
		// no registry configured, only git/path dependencies resolve
	default:
		return opts, nil, fmt.Errorf("failed to load registry index: %w", err)
	}

	reg := registryclient.New(registryEntries, httpClient, gitCache, oci)

	walker := resolve.NewWalker(gitCache, reg, manifest.Reader{}, resolve.Options{
		Mode: semverxModeFor(opts.ResolutionMode),
	})

	result, err := walker.Resolve(ctx, roots, root)
	if err != nil {
		return opts, nil, err
	}

	if len(result.VersionSolution.Conflicts) > 0 {
		var msg string
		for _, c := range result.VersionSolution.Conflicts {
			msg += fmt.Sprintf("\n  %s: ranges %v requested by %v", c.PackageName, c.Ranges, c.RequestedBy)
		}
		return opts, nil, fmt.Errorf("unresolved version conflicts:%s", msg)
	}

	return opts, result.Graph, nil
}

// semverxModeFor maps a run's conflict-resolution policy onto the
// solver's local/remote lookup strategy: strict mode never trusts a
// fresher remote version over what's already resolved locally, newest
// mode always checks the remote first.
func semverxModeFor(mode config.ResolutionMode) semverx.Mode {
	switch mode {
	case config.ResolutionStrict:
		return semverx.ModeLocalOnly
	case config.ResolutionNewest:
		return semverx.ModeRemotePrimary
	default:
		return semverx.ModeDefault
	}
}
