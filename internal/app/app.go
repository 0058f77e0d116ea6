package app

import (
	"github.com/spf13/cobra"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/cli"
)

var version = "dev"

func BuildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "panda",
		Short:         "Static vulnerability scanner for Solana and Anchor programs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cli.AddCommands(root)
	return root
}
