package cmd

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/encodeous/weft/rtp"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:     "rtp-send <receiver_ip> <receiver_port> <window_size>",
	Short:   "Send stdin to an rtp-recv endpoint",
	GroupID: "rtp",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid receiver port %q", args[1])
		}
		window, err := strconv.Atoi(args[2])
		if err != nil || window <= 0 {
			return fmt.Errorf("invalid window size %q", args[2])
		}
		log, err := newLogger("rtp-send")
		if err != nil {
			return err
		}

		msg, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		sender, err := rtp.Dial(net.JoinHostPort(args[0], args[1]), window, log)
		if err != nil {
			return err
		}
		if err := sender.Connect(); err != nil {
			return err
		}
		if err := sender.Send(msg); err != nil {
			return err
		}
		return sender.Close()
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
