package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/dgram/internal/endpoint"
)

func sendCmd(opts *globalOptions) *cobra.Command {
	var (
		dest    string
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one datagram and optionally wait for a reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Endpoint.ReceiveTimeout = timeout
			}

			addr, err := parseAddress(dest, cfg.Endpoint.Address, "o")
			if err != nil {
				return err
			}

			s, err := newSession(cfg, endpoint.ModeClient)
			if err != nil {
				return err
			}
			defer s.close()

			ep, err := s.open(endpoint.ModeClient, addr)
			if err != nil {
				return err
			}
			defer ep.Close()

			msg := []byte(strings.Join(args, " "))
			n, err := ep.Send(msg, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "sent %d bytes to %s\n", n, addr)

			if !wait {
				return nil
			}

			buf := make([]byte, endpoint.MaxDatagramSize)
			n, from, err := ep.Receive(buf, cfg.Endpoint.ReceiveTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "received %d bytes from %s\n", n, from)
			os.Stdout.Write(buf[:n])
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&dest, "output", "o", "", "Destination address (ip:port)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for a reply")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "Reply timeout (0 waits forever)")

	return cmd
}

func recvCmd(opts *globalOptions) *cobra.Command {
	var (
		listen  string
		count   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Print datagrams received on a local address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Endpoint.ReceiveTimeout = timeout
			}

			addr, err := parseAddress(listen, cfg.Endpoint.Address, "i")
			if err != nil {
				return err
			}

			s, err := newSession(cfg, endpoint.ModeServer)
			if err != nil {
				return err
			}
			defer s.close()

			ep, err := s.open(endpoint.ModeServer, addr)
			if err != nil {
				return err
			}
			defer ep.Close()

			buf := make([]byte, endpoint.MaxDatagramSize)
			for i := 0; count == 0 || i < count; i++ {
				n, from, err := ep.Receive(buf, cfg.Endpoint.ReceiveTimeout)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d\t%q\n", from, n, buf[:n])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "i", "", "Local address to bind (ip:port)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of datagrams to receive (0 for unlimited)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Receive timeout per datagram (0 waits forever)")

	return cmd
}
