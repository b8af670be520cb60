package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the harbor command tree with logging and global flags
// wired in.
func NewRootCmd(version string) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "harbor",
		Short:         "harbor starts, checks and stops a local service graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitLoggerFromCobra(cmd)
		},
	}
	if err := logging.AddLoggingLayerToRootCommand(root, "harbor"); err != nil {
		return nil, err
	}
	if err := AddRootFlags(root); err != nil {
		return nil, err
	}
	AddCommands(root)
	return root, nil
}

func AddCommands(root *cobra.Command) {
	root.AddCommand(newUpCmd())
	root.AddCommand(newDownCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())

	root.AddCommand(newValidateCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newOrganizeCmd())
}
