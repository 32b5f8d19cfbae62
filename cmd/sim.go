package cmd

import (
	"fmt"

	"github.com/encodeous/weft/mock"
	"github.com/encodeous/weft/state"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:     "sim <scenario.yaml>",
	Short:   "Run a routing scenario on the in-memory network",
	GroupID: "sim",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadScenario(args[0])
		if err != nil {
			return err
		}
		log, err := newLogger(string(cfg.Protocol))
		if err != nil {
			return err
		}

		n, err := mock.New(cfg, log)
		if err != nil {
			return err
		}
		defer n.Close()

		n.Run(cfg)
		fmt.Fprintln(cmd.OutOrStdout(), n.DebugString())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simCmd)
}
