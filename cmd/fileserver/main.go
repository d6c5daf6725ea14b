// Command fileserver runs the "client" side of the wire protocol: it
// serves LIST/PULL/PUSH requests from the manager against its local
// filesystem.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haldring/syncd/internal/fsrv"
	"github.com/haldring/syncd/internal/synclog"
)

func main() {
	var port int

	cmd := &cobra.Command{
		Use:   "fileserver",
		Short: "Run the file-server command loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (required, positive)")
	_ = cmd.MarkFlagRequired("port")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(port int) error {
	if port <= 0 {
		return fmt.Errorf("port must be positive")
	}

	log := synclog.New(os.Stdout, os.Stdout)

	srv, err := fsrv.Listen(fmt.Sprintf(":%d", port), log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Infof("file-server listening on %s", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("signal received, shutting down")
		cancel()
	}()

	return srv.Serve(ctx)
}
