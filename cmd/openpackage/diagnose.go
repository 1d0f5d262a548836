package main

import (
	"github.com/spf13/cobra"

	"github.com/openpackage/openpackage/internal/index"
	"github.com/openpackage/openpackage/internal/workspace"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [workspace-root]",
	Short: "Check every file the index claims a package owns still exists on disk",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiagnose,
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	paths, err := workspace.New(root)
	if err != nil {
		return err
	}

	result, err := index.New(paths.Root()).Load()
	if err != nil {
		return err
	}

	report, err := workspace.Diagnose(result.Index)
	if err != nil {
		return err
	}

	if !report.HasIssues() {
		cmd.Println("no stale files found")
		return nil
	}

	for _, stale := range report.StaleFiles {
		cmd.Println(stale.Message())
	}
	cmd.Printf("%d stale file(s) found\n", len(report.StaleFiles))
	return nil
}
