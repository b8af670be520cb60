package main

import (
	"github.com/eduard-lt/Harbor/cmd/harbor/cmds"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd, err := cmds.NewRootCmd(version)
	cobra.CheckErr(err)
	cobra.CheckErr(rootCmd.Execute())
}
