package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/encodeous/weft/rtp"
	"github.com/spf13/cobra"
)

var recvCmd = &cobra.Command{
	Use:     "rtp-recv <listen_port> <window_size>",
	Short:   "Receive an RTP stream and write it to stdout",
	GroupID: "rtp",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid listen port %q", args[0])
		}
		window, err := strconv.Atoi(args[1])
		if err != nil || window <= 0 {
			return fmt.Errorf("invalid window size %q", args[1])
		}
		log, err := newLogger("rtp-recv")
		if err != nil {
			return err
		}

		receiver, err := rtp.Listen(port, window, log)
		if err != nil {
			return err
		}
		defer receiver.Close()
		if err := receiver.Accept(); err != nil {
			return err
		}
		return receiver.Pipe(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(recvCmd)
}
