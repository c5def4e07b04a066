package version

import (
	"fmt"

	"github.com/laerinok/vs-mods-updater/internal/environment"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: i18n.T("cmd.version.short"),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), environment.AppVersion())
		},
	}

	return versionCmd
}
