package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/configcrunch/document"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the configured document types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()
		for _, header := range a.registry.Headers() {
			typ, _ := a.registry.Lookup(header)
			fmt.Fprintln(out, header)
			if provider, ok := typ.(document.SubdocumentProvider); ok {
				for _, sub := range provider.Subdocuments() {
					kind := sub.Type.Header()
					if sub.Many {
						kind = "map of " + kind
					}
					fmt.Fprintf(out, "  %s: %s\n", sub.Key, kind)
				}
			}
			if gt, ok := typ.(*document.GenericType); ok && len(gt.Required) > 0 {
				fmt.Fprintf(out, "  required: %s\n", strings.Join(gt.Required, ", "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
