package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/configcrunch/document"
)

var renderCmd = &cobra.Command{
	Use:   "render <file> <template>",
	Short: "Render a template file against a resolved document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runRender(cmd, args[0], args[1], cmd.OutOrStdout())
	},
}

func (a *app) runRender(cmd *cobra.Command, file, tmpl string, out io.Writer) error {
	doc, err := a.load(cmd.Context(), []string{file}, true)
	if err != nil {
		return err
	}
	input, err := os.ReadFile(a.path(tmpl))
	if err != nil {
		return err
	}
	processor := &document.VariableProcessor{Helpers: a.helpers}
	rendered, err := processor.ProcessFor(doc, string(input))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
