package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(4)
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Load every file on its own and validate the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runValidate(cmd, args, cmd.OutOrStdout())
	},
}

func (a *app) runValidate(cmd *cobra.Command, files []string, out io.Writer) error {
	failed := 0
	for _, file := range files {
		doc, err := a.load(cmd.Context(), []string{file}, true)
		if err == nil {
			err = doc.Validate()
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s\n", failStyle.Render("FAIL"), file)
			fmt.Fprintln(out, detailStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintf(out, "%s %s (%s)\n", okStyle.Render("OK"), file, doc.Header())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents invalid", failed, len(files))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
