package flotillactl

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/lifecycle"
)

func (a *App) Create(req lifecycle.CreateRequest) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	result, err := m.Create(req)
	if result != nil {
		fmt.Fprintf(a.Out, "Submitted cluster %s as instance %s\n", req.Name, result.InstanceId)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Created cluster %s (%s)\n", req.Name, result.Report.State)
	return nil
}

func (a *App) Destroy(name string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	if err := m.Destroy(name); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Destroyed cluster %s\n", name)
	return nil
}

func (a *App) Freeze(name string, wait time.Duration) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	if err := m.Freeze(name, wait); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Froze cluster %s\n", name)
	return nil
}

func (a *App) Thaw(name string, wait time.Duration) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	result, err := m.Thaw(name, wait)
	if result != nil {
		fmt.Fprintf(a.Out, "Submitted cluster %s as instance %s\n", name, result.InstanceId)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Thawed cluster %s (%s)\n", name, result.Report.State)
	return nil
}

func (a *App) Flex(name string, counts map[string]int, persist bool) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	result, err := m.Flex(name, counts, persist)
	if err != nil {
		return err
	}
	switch {
	case !result.Running:
		fmt.Fprintf(a.Out, "No-op: cluster %s is not running\n", name)
	case result.Changed:
		fmt.Fprintf(a.Out, "Resized cluster %s\n", name)
	default:
		fmt.Fprintf(a.Out, "No-op: cluster %s already has the requested role counts\n", name)
	}
	return nil
}

func (a *App) Exists(name string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	if err := m.Exists(name); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Cluster %s is live\n", name)
	return nil
}

// List prints the instances of user as a table, restricted to the preferred instance of name if given.
func (a *App) List(name string, user string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	reports, err := m.List(name, user)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tINSTANCE\tUSER\tSTATE\tFINAL STATUS\tCOORDINATOR")
	for _, r := range reports {
		coordinator := "-"
		if r.Host != "" {
			coordinator = fmt.Sprintf("%s:%d", r.Host, r.RpcPort)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.Id, r.User, r.State, r.FinalStatus, coordinator)
	}
	return nil
}

// ListDefined prints every cluster with a persisted specification and the state of its instance.
func (a *App) ListDefined(user string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	clusters, err := m.ListDefined(user)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tINSTANCE\tSTATE")
	for _, c := range clusters {
		if c.Instance == nil {
			fmt.Fprintf(w, "%s\t-\t-\n", c.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Instance.Id, c.Instance.State)
	}
	return nil
}

// Status prints the specification reported by the running cluster as json or yaml.
func (a *App) Status(name string, output string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	status, err := m.Status(name)
	if err != nil {
		return err
	}
	var data []byte
	switch output {
	case "", "json":
		data, err = status.ToJSON()
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(status)
	default:
		return &flotillaerrors.ErrInvalidArgument{Name: "output", Value: output, Message: "supported outputs are json and yaml"}
	}
	if err != nil {
		return errors.Wrapf(err, "error rendering status of cluster %s", name)
	}
	_, err = a.Out.Write(data)
	return err
}

// GetConf writes the client configuration of a running cluster to outputFile, or to the output if empty.
func (a *App) GetConf(name string, format string, outputFile string) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	conf, err := m.GetConf(name, format)
	if err != nil {
		return err
	}
	if outputFile == "" {
		_, err = a.Out.Write(conf)
		return err
	}
	if err := afero.WriteFile(a.Fs, outputFile, conf, 0o644); err != nil {
		return errors.Wrapf(err, "error writing configuration of cluster %s to %s", name, outputFile)
	}
	fmt.Fprintf(a.Out, "Wrote configuration of cluster %s to %s\n", name, outputFile)
	return nil
}

func (a *App) WaitForRole(name string, role string, timeout time.Duration) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	node, err := m.WaitForRoleInstanceLive(name, role, timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Node %s of role %s is %s on %s\n", node.Name, role, node.State, node.Host)
	return nil
}
