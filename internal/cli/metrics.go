package cli

import (
	"github.com/spf13/cobra"

	"github.com/ageapps/chatfeed/internal/metrics"
)

func newMetricsCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve the Prometheus metrics endpoint",
		Long:  "Serve /metrics and /healthz until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			if err := serveMetrics(cmd.Context(), metrics.NewServer(addr)); err != nil {
				return Exitf(ExitCodeFailure, "%w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default metrics.addr)")
	return cmd
}
