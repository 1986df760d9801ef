// cmd/tools/registry-updater/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registryPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "registry-updater",
		Short: "Maintain the activity registry of passport job types",
		Long: `registry-updater edits and checks configs/activity-registry.json, the
catalogue of Zeebe task types served by passport-manager.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&registryPath, "path", "configs/activity-registry.json", "path to registry file")

	root.AddCommand(addCmd())
	root.AddCommand(updateCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(listCmd())
	root.AddCommand(checkVarsCmd())
	root.AddCommand(scaffoldCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
