package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/flotilla/internal/flotillactl"
	"github.com/G-Research/flotilla/internal/lifecycle"
)

func createCmd() *cobra.Command {
	return createCmdWithApp(flotillactl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func createCmdWithApp(a *flotillactl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a cluster and launch its coordinator",
		Long: `Persists the specification of a new cluster, copies its configuration directory into the
store and submits the cluster coordinator to the resource broker.

Either --image or --apphome must be given, but not both.`,
		Args: clusterName,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			req, err := createRequest(cmd, args[0])
			if err != nil {
				return err
			}
			return a.Create(req)
		},
	}
	cmd.Flags().String("confdir", "", "local directory holding the cluster configuration")
	cmd.Flags().String("image", "", "path in the store of the application image")
	cmd.Flags().String("apphome", "", "preinstalled application home on the cluster hosts")
	cmd.Flags().String("zkhosts", "", "comma separated coordination service hosts")
	cmd.Flags().Int("zkport", lifecycle.DefaultZkPort, "coordination service port")
	cmd.Flags().String("zkpath", "", "coordination service path, /flotilla_<user>_<name> if empty")
	cmd.Flags().StringArray("role", []string{}, "instances of a role as role=count, repeatable")
	cmd.Flags().StringArray("roleopt", []string{}, "option of a role as role.key=value, repeatable")
	cmd.Flags().StringArray("option", []string{}, "cluster option as key=value, repeatable")
	cmd.Flags().Duration("wait", 0, "how long to wait for the cluster to be running, not at all if zero")
	return cmd
}

func createRequest(cmd *cobra.Command, name string) (lifecycle.CreateRequest, error) {
	req := lifecycle.CreateRequest{Name: name}
	flags := cmd.Flags()
	var err error
	if req.ConfDir, err = flags.GetString("confdir"); err != nil {
		return req, err
	}
	if req.ImagePath, err = flags.GetString("image"); err != nil {
		return req, err
	}
	if req.ApplicationHome, err = flags.GetString("apphome"); err != nil {
		return req, err
	}
	if req.ZkHosts, err = flags.GetString("zkhosts"); err != nil {
		return req, err
	}
	if req.ZkPort, err = flags.GetInt("zkport"); err != nil {
		return req, err
	}
	if req.ZkPath, err = flags.GetString("zkpath"); err != nil {
		return req, err
	}
	if req.Wait, err = flags.GetDuration("wait"); err != nil {
		return req, err
	}

	roles, err := flags.GetStringArray("role")
	if err != nil {
		return req, err
	}
	if req.RoleCounts, err = roleCounts(roles); err != nil {
		return req, err
	}
	roleOpts, err := flags.GetStringArray("roleopt")
	if err != nil {
		return req, err
	}
	if req.RoleOptions, err = roleOptions(roleOpts); err != nil {
		return req, err
	}
	options, err := flags.GetStringArray("option")
	if err != nil {
		return req, err
	}
	if req.Options, err = keyValues("option", options); err != nil {
		return req, err
	}
	return req, nil
}
