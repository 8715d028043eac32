package cmd

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/flotillactl"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flotillactl",
		Short: "flotillactl creates and manages long-lived service clusters on a shared resource broker.",
		// Errors are logged once by main, which also picks the exit code.
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &flotillaerrors.ErrUnimplemented{Action: strings.Join(args, " ")}
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
			cfgFile, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if err := flotillactl.LoadCommandlineArgsFromConfigFile(cfgFile); err != nil {
				return &flotillaerrors.ErrInvalidArgument{Name: "config", Value: cfgFile, Message: err.Error()}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &flotillaerrors.ErrInvalidArgument{Name: cmd.Name(), Message: err.Error()}
	})

	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.flotillactl.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")
	flotillactl.AddConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		createCmd(),
		destroyCmd(),
		freezeCmd(),
		thawCmd(),
		flexCmd(),
		existsCmd(),
		listCmd(),
		statusCmd(),
		getconfCmd(),
		waitCmd(),
		observeCmd(),
	)

	return cmd
}

// initParams fills params from the flags, config file and environment merged into viper.
func initParams(params *flotillactl.Params) error {
	config, err := flotillactl.ExtractClientConfig()
	if err != nil {
		return err
	}
	params.Config = config
	return nil
}

// clusterName accepts exactly one positional argument, the cluster name.
func clusterName(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return &flotillaerrors.ErrInvalidArgument{
			Name:    "name",
			Value:   args,
			Message: "exactly one cluster name is required",
		}
	}
	return nil
}
