// poswark is the PoSW throughput prover: `tablegen` precomputes windowed
// lookup tables from the SRS, `bench` runs the prover pool against them
// for a fixed wall-clock window and reports proofs per second.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "poswark",
	Short:         "GPU-accelerated PoSW prover",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "poswark:", err)
		os.Exit(1)
	}
}
