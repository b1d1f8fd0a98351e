package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "donate",
		Short:   "Donate over Lightning from the terminal",
		Version: Version,
		Long: `Creates a donation invoice through the donation API, shows the payment
request as a QR code and waits for it to settle.

While waiting, type a command and press enter:
  b  go back and change the details
  r  create a fresh invoice after expiry
  a  donate again after a settled donation
  q  quit`,
		SilenceUsage: true,
	}

	registerCheckoutFlags(rootCmd)
	rootCmd.RunE = runCheckout

	rootCmd.AddCommand(tiersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
