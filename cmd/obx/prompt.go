package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/semmidev/obx/internal/domain"
	"github.com/spf13/cobra"
)

// interactive reports whether the user can be asked on the terminal. An
// explicit --on-existing or --non-interactive disables prompting.
func interactive(cmd *cobra.Command, opts *rootOptions) bool {
	if opts.nonInteractive || cmd.Flags().Changed("on-existing") {
		return false
	}
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// promptAction asks until a valid answer is given. An empty answer picks
// def, end of input cancels.
func promptAction(in io.Reader, out io.Writer, def domain.Action) domain.Action {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Replace them, add alongside or cancel? [r/a/c] (default %s): ", def)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return domain.ActionCancel
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			return def
		case "r", "replace":
			return domain.ActionReplace
		case "a", "add":
			return domain.ActionAdd
		case "c", "cancel":
			return domain.ActionCancel
		}
		fmt.Fprintln(out, "Please answer r, a or c.")
	}
}
