package main

import (
	"path/filepath"

	"github.com/consensys/gnark/logger"
	"github.com/spf13/cobra"

	"github.com/eon-protocol/poswark"
)

var tablegenFlags struct {
	window   int
	shifted  bool
	srsPath  string
	tableDir string
}

var tablegenCmd = &cobra.Command{
	Use:   "tablegen",
	Short: "Precompute the windowed lookup table for one (window, basis) key",
	RunE:  runTablegen,
}

func init() {
	f := tablegenCmd.Flags()
	f.IntVar(&tablegenFlags.window, "window-size", 0, "scalar bits per table lookup (required)")
	f.BoolVar(&tablegenFlags.shifted, "shifted-lagrange", false, "build over the shifted-Lagrange basis")
	f.StringVar(&tablegenFlags.srsPath, "srs", filepath.Join(poswark.DATA_CACHE_DIR, poswark.SRS_FILE), "SRS file")
	f.StringVar(&tablegenFlags.tableDir, "table-dir", poswark.DATA_CACHE_DIR, "output directory")
	_ = tablegenCmd.MarkFlagRequired("window-size")
	rootCmd.AddCommand(tablegenCmd)
}

func runTablegen(cmd *cobra.Command, args []string) error {
	log := logger.Logger().With().Str("component", "tablegen").Logger()

	basis := poswark.BasisStandard
	if tablegenFlags.shifted {
		basis = poswark.BasisShiftedLagrange
	}

	srs, err := poswark.LoadSRS(tablegenFlags.srsPath, poswark.SRS_SIZE, poswark.SRS_CK_HASH)
	if err != nil {
		return err
	}

	table, err := poswark.GenerateTable(srs, tablegenFlags.window, basis)
	if err != nil {
		return err
	}
	path, err := poswark.WriteTable(table, tablegenFlags.tableDir)
	if err != nil {
		return err
	}
	log.Info().
		Int("window", table.Window).
		Str("basis", table.Basis.String()).
		Int("entries", len(table.Points)).
		Str("path", path).
		Msg("table written")
	return nil
}
