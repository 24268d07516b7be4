package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "garaged",
		Short: "Garage bay booking engine: allocation, lifecycle, job cards and reminders",
	}
	root.PersistentFlags().String("store", "", "override STORE (postgres or memory)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newBookingCmd())
	root.AddCommand(newJobCardCmd())
	root.AddCommand(newBayCmd())
	root.AddCommand(newRemindersCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
