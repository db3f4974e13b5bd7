package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/c2w-dev/c2w/internal/config"
	"github.com/c2w-dev/c2w/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		force   bool
		catalog string
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default c2w.json",
		Long: `Write a c2w.json holding the default configuration.

Examples:
  c2w init
  c2w init /etc/c2w --catalog movies.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, catalog, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing c2w.json")
	cmd.Flags().StringVar(&catalog, "catalog", "", "Movie catalog file to reference")

	return cmd
}

func runInit(dir, catalog string, force bool) error {
	if config.Exists(dir) && !force {
		return errors.Newf(errors.CategoryConfig, "%s already exists", filepath.Join(dir, config.ConfigFileName)).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.New("C100").Wrap(err)
	}

	cfg := config.New()
	cfg.Catalog.File = catalog
	path := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
