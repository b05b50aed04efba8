// Package main provides the dgram-bench CLI: a UDP echo server and a
// round-trip latency client built on the dgram endpoint library.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dgram-bench",
		Short: "UDP round-trip latency benchmark",
		Long: `dgram-bench measures UDP round-trip latency between two hosts.

Run "dgram-bench server -i ip:port" on one host and
"dgram-bench client -o ip:port -n samples -s size" on the other.
The client prints the worst, average and standard deviation of the
round-trip time in microseconds.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts globalOptions
	opts.bind(rootCmd)

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serverCmd(&opts))
	rootCmd.AddCommand(clientCmd(&opts))
	rootCmd.AddCommand(sendCmd(&opts))
	rootCmd.AddCommand(recvCmd(&opts))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dgram-bench %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
