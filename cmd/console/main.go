// Command console is the operator's interactive front end to a
// running manager: it opens a TCP connection, relays lines typed on
// stdin as commands, and prints the manager's replies.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var (
		logFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Operator console for the sync manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logFile, host, port)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&logFile, "logfile", "l", "", "optional path to log the session transcript")
	flags.StringVarP(&host, "host", "h", "127.0.0.1", "manager host")
	flags.IntVarP(&port, "port", "p", 0, "manager console port (required, positive)")
	_ = cmd.MarkFlagRequired("port")

	// cobra gives its auto-generated --help flag the "h" shorthand only
	// when no other flag has claimed it; with --host registered under
	// "h" above, help is added without a shorthand instead of colliding
	// with it.
	cmd.InitDefaultHelpFlag()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logFile, host string, port int) error {
	if port <= 0 {
		return fmt.Errorf("port must be positive")
	}

	var transcript *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open transcript log: %w", err)
		}
		defer f.Close()
		transcript = f
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("connect to manager: %w", err)
	}
	defer conn.Close()

	replies := bufio.NewScanner(conn)
	go func() {
		for replies.Scan() {
			line := replies.Text()
			fmt.Println(line)
			if transcript != nil {
				fmt.Fprintln(transcript, "< "+line)
			}
		}
	}()

	input := bufio.NewScanner(os.Stdin)
	for input.Scan() {
		line := input.Text()
		if transcript != nil {
			fmt.Fprintln(transcript, "> "+line)
		}
		if _, err := fmt.Fprintln(conn, line); err != nil {
			return fmt.Errorf("send command: %w", err)
		}
		if line == "shutdown" {
			break
		}
	}
	return input.Err()
}
