package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/openpackage/openpackage/internal/format"
	"github.com/openpackage/openpackage/internal/index"
	"github.com/openpackage/openpackage/internal/install"
	"github.com/openpackage/openpackage/internal/model"
	"github.com/openpackage/openpackage/internal/plan"
	"github.com/openpackage/openpackage/internal/platform"
	"github.com/openpackage/openpackage/internal/strategy"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install [workspace-root]",
	Short: "Resolve the workspace manifest and install every package wave by wave",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even when a package already owns its target files")
}

func runInstall(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	ctx := cmd.Context()
	opts, graph, err := resolveWorkspace(ctx, root)
	if err != nil {
		return err
	}
	if len(graph.Nodes) == 0 {
		cmd.Println("nothing to install")
		return nil
	}

	for _, node := range graph.Nodes {
		if node.Metadata == nil {
			node.Metadata = map[string]string{}
		}
		node.Metadata["targetRoot"] = root
	}

	planner := plan.New(plan.Tables{
		Detector:     format.NewDetector(platform.Markers(), platform.Schemas()),
		ImportFlows:  platform.ImportFlows(),
		Transforms:   platform.Transforms(),
		TargetFormat: plan.UniversalFormat,
	}, fileWriter{})

	idx := index.New(root)
	engine := install.NewEngine(planner, idx, install.Options{
		ConcurrencyLimit: opts.ConcurrencyLimit,
		Force:            opts.Force || installForce,
		FailFast:         opts.FailFast,
	})

	progress := mpb.New(mpb.WithOutput(cmd.OutOrStdout()))
	bar := progress.AddBar(int64(len(graph.Nodes)),
		mpb.PrependDecorators(decor.Name("installing")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	report, err := engine.Install(ctx, graph, map[string]bool{})
	if err != nil {
		return err
	}
	bar.SetCurrent(int64(len(report.Outcomes)))
	progress.Wait()

	for _, o := range report.Outcomes {
		for _, line := range o.Output {
			cmd.Println(line)
		}
	}
	for _, w := range report.Warnings {
		cmd.Printf("warning: %s\n", w)
	}

	cmd.Printf("installed %d, skipped %d, failed %d (run %s)\n", report.Installed, report.Skipped, report.Failed, report.RunID)
	if report.Failed > 0 {
		return fmt.Errorf("%d package(s) failed to install", report.Failed)
	}
	return nil
}

// fileWriter implements strategy.Writer over the local filesystem,
// creating any missing parent directories before writing.
type fileWriter struct{}

func (fileWriter) Write(targetPath string, file model.PackageFile) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", targetPath, err)
	}
	if err := os.WriteFile(targetPath, file.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", targetPath, err)
	}
	return nil
}

var _ strategy.Writer = fileWriter{}
