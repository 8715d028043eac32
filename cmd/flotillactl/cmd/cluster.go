package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/flotillactl"
)

func destroyCmd() *cobra.Command {
	return destroyCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func destroyCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Delete the persisted state of a stopped cluster",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			return a.Destroy(args[0])
		},
	}
	return cmd
}

func freezeCmd() *cobra.Command {
	return freezeCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func freezeCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freeze <name>",
		Short: "Stop a running cluster, keeping its specification",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			wait, err := cmd.Flags().GetDuration("wait")
			if err != nil {
				return err
			}
			return a.Freeze(args[0], wait)
		},
	}
	cmd.Flags().Duration("wait", 0, "how long to wait for the cluster to finish, not at all if zero")
	return cmd
}

func thawCmd() *cobra.Command {
	return thawCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func thawCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thaw <name>",
		Short: "Relaunch a frozen cluster from its persisted specification",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			wait, err := cmd.Flags().GetDuration("wait")
			if err != nil {
				return err
			}
			return a.Thaw(args[0], wait)
		},
	}
	cmd.Flags().Duration("wait", 0, "how long to wait for the cluster to be running, not at all if zero")
	return cmd
}

func flexCmd() *cobra.Command {
	return flexCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func flexCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flex <name>",
		Short: "Change the number of instances of cluster roles",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			roles, err := cmd.Flags().GetStringArray("role")
			if err != nil {
				return err
			}
			counts, err := roleCounts(roles)
			if err != nil {
				return err
			}
			persist, err := cmd.Flags().GetBool("persist")
			if err != nil {
				return err
			}
			return a.Flex(args[0], counts, persist)
		},
	}
	cmd.Flags().StringArray("role", []string{}, "instances of a role as role=count, repeatable")
	cmd.Flags().Bool("persist", true, "also store the new counts in the cluster specification")
	return cmd
}

func existsCmd() *cobra.Command {
	return existsCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func existsCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exists <name>",
		Short: "Succeed if the cluster has a live instance",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			return a.Exists(args[0])
		},
	}
	return cmd
}

func listCmd() *cobra.Command {
	return listCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func listCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [name]",
		Short: "List cluster instances",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &flotillaerrors.ErrInvalidArgument{Name: "name", Value: args, Message: "at most one cluster name is allowed"}
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			user, err := cmd.Flags().GetString("owner")
			if err != nil {
				return err
			}
			defined, err := cmd.Flags().GetBool("defined")
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if defined {
				if name != "" {
					return &flotillaerrors.ErrInvalidArgument{Name: "name", Value: name, Message: "--defined lists every cluster"}
				}
				return a.ListDefined(user)
			}
			return a.List(name, user)
		},
	}
	cmd.Flags().String("owner", "", "only list instances of this user, all users if empty")
	cmd.Flags().Bool("defined", false, "list every cluster with a stored specification, frozen ones included")
	return cmd
}

func statusCmd() *cobra.Command {
	return statusCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func statusCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Print the specification reported by a running cluster",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			return a.Status(args[0], output)
		},
	}
	cmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	return cmd
}

func getconfCmd() *cobra.Command {
	return getconfCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func getconfCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "getconf <name>",
		Short: "Print the client configuration of a running cluster",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			return a.GetConf(args[0], format, output)
		},
	}
	cmd.Flags().String("format", "xml", "configuration format: xml, properties or yaml")
	cmd.Flags().StringP("output", "o", "", "file to write the configuration to, standard output if empty")
	return cmd
}

func waitCmd() *cobra.Command {
	return waitCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func waitCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <name>",
		Short: "Wait until an instance of a role is live",
		Args:  clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			role, err := cmd.Flags().GetString("role")
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			return a.WaitForRole(args[0], role, timeout)
		},
	}
	cmd.Flags().String("role", "", "role to wait for")
	cmd.Flags().Duration("timeout", time.Minute, "how long to wait")
	return cmd
}
