package command

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fasmide/portname/buildvars"
	"github.com/fasmide/portname/buildvars/israce"
)

// Version reports how portname was built
func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Report how portname was built",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Module version:    %s\n", buildvars.Module())
			fmt.Fprintf(out, "Go version:        %s\n", runtime.Version())
			fmt.Fprintf(out, "Go arch:           %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Race detection:    %t\n", israce.Enabled)

			// git details are only known when set with -ldflags
			if buildvars.Initialized != "true" {
				return
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Git Repository:    %s\n", buildvars.GitRepository)
			fmt.Fprintf(out, "Git Commit Date:   %s\n", buildvars.GitCommitDate)
			fmt.Fprintf(out, "Git Commit:        %s\n", buildvars.GitCommit)

			fmt.Fprint(out, "Local Changes:     ")
			if len(buildvars.GitPorcelain) == 0 {
				fmt.Fprint(out, "false\n")
			} else {
				fmt.Fprintf(out, "true\n%s\n", buildvars.GitPorcelain)
			}
		},
	}
}
