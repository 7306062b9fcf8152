// Command dentalctl runs operator tasks against a DentalCare deployment.
package main

import (
	"fmt"
	"os"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/runtime"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.Load(""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:          "dentalctl",
		Short:        "DentalCare operator tooling",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(webhookSimCmd())

	ctx, stop := runtime.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
