package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/G-Research/flotilla/internal/flotillactl"
	"github.com/G-Research/flotilla/internal/placement"
)

func observeCmd() *cobra.Command {
	return observeCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func observeCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe <name>",
		Short: "Track where the nodes of a running cluster are placed",
		Long: `Records which hosts run live nodes of each role and ranks the known hosts for the next
instance of each role. Unless --once is given, keeps observing until interrupted, purging hosts
idle for longer than the configured maximum age and serving placement metrics.`,
		Args: clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			policyName, err := cmd.Flags().GetString("policy")
			if err != nil {
				return err
			}
			policy, err := placement.ParsePolicy(policyName)
			if err != nil {
				return err
			}
			once, err := cmd.Flags().GetBool("once")
			if err != nil {
				return err
			}
			if once {
				return a.ObserveOnce(args[0], policy)
			}
			metricsPort, err := cmd.Flags().GetUint16("metricsPort")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Observe(ctx, args[0], policy, metricsPort)
		},
	}
	cmd.Flags().String("policy", "", "host ranking policy: affinity or spread")
	cmd.Flags().Bool("once", false, "observe once and exit")
	cmd.Flags().Uint16("metricsPort", a.Params.Config.Metrics.Port, "port to serve placement metrics on")
	return cmd
}
