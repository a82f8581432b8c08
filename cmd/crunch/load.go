package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/configcrunch/document"
)

var (
	loadNoVars bool
	loadFreeze bool
	loadOutput string
)

var loadCmd = &cobra.Command{
	Use:   "load <file>...",
	Short: "Merge, resolve and render documents and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runLoad(cmd, args, cmd.OutOrStdout())
	},
}

func (a *app) runLoad(cmd *cobra.Command, args []string, out io.Writer) error {
	doc, err := a.load(cmd.Context(), args, !loadNoVars)
	if err != nil {
		return err
	}
	if loadFreeze {
		if err := doc.Freeze(); err != nil {
			return err
		}
	}
	format := loadOutput
	if format == "" {
		format = a.cfg.Output
	}
	return writeDocument(out, doc, format)
}

func writeDocument(out io.Writer, doc *document.Document, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc.ToMap())
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc.ToMap()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func init() {
	loadCmd.Flags().BoolVar(&loadNoVars, "no-vars", false, "skip variable processing")
	loadCmd.Flags().BoolVar(&loadFreeze, "freeze", false, "freeze the document before printing")
	loadCmd.Flags().StringVarP(&loadOutput, "output", "o", "", "output format: yaml or json (default from config)")
	rootCmd.AddCommand(loadCmd)
}
