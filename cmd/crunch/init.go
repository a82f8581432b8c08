package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/configcrunch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default " + config.FileName,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := filepath.Abs(projectDir)
		if err != nil {
			return err
		}
		path, err := config.InitConfigFile(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
