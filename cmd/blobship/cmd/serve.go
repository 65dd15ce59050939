package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blobship/internal/shipper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept records over HTTP and ship them until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			s, err := shipper.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return s.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address, overrides http.addr")

	return cmd
}
