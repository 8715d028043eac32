package flotillactl

import (
	"fmt"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/flotilla/internal/common"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/lifecycle/configuration"
)

// AddConnectionCommandlineArgs adds the persistent flags shared by every command and binds them into viper.
// Flag defaults are the configuration defaults, so an unset flag never hides a config file value.
func AddConnectionCommandlineArgs(rootCmd *cobra.Command) {
	d := configuration.Default()
	flags := rootCmd.PersistentFlags()
	flags.String("brokerUrl", d.BrokerUrl, "address of the resource broker")
	flags.Bool("forceNoTls", d.ForceNoTls, "connect to the broker and to coordinators without TLS")
	flags.String("user", d.User, "user owning the clusters, the current user if empty")
	flags.String("provider", d.Provider, "provider of the deployed service")
	flags.String("storeType", d.Store.Type, "store of cluster specifications: redis or filesystem")
	flags.String("storeRoot", d.Store.Root, "directory of the filesystem store or key prefix of the redis store")
	flags.Duration("rpcTimeout", d.RpcTimeout, "timeout of each remote call")
	flags.Duration("acceptTimeout", d.AcceptTimeout, "how long to wait for a submission to be accepted")

	for key, flag := range map[string]string{
		"brokerUrl":     "brokerUrl",
		"forceNoTls":    "forceNoTls",
		"user":          "user",
		"provider":      "provider",
		"store.type":    "storeType",
		"store.root":    "storeRoot",
		"rpcTimeout":    "rpcTimeout",
		"acceptTimeout": "acceptTimeout",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// LoadCommandlineArgsFromConfigFile merges cfgFile, or ~/.flotillactl.yaml if cfgFile is empty, into viper.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".flotillactl")
	}

	viper.SetEnvPrefix(common.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.MergeInConfig()
	if err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// Only returned when looking for ~/.flotillactl.yaml, which is optional.
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

// ExtractClientConfig returns the defaults overlaid with everything viper knows, validated.
func ExtractClientConfig() (configuration.ClientConfig, error) {
	config := configuration.Default()
	if err := viper.Unmarshal(&config); err != nil {
		return config, &flotillaerrors.ErrInvalidArgument{Name: "config", Message: err.Error()}
	}
	if config.User == "" {
		current, err := user.Current()
		if err != nil {
			return config, &flotillaerrors.ErrInvalidArgument{Name: "user", Message: "no user given and the current user is unknown"}
		}
		config.User = current.Username
	}
	if config.Store.Type == configuration.StoreTypeFilesystem {
		root, err := filesystemRoot(config.Store.Root)
		if err != nil {
			return config, &flotillaerrors.ErrInvalidArgument{Name: "storeRoot", Value: config.Store.Root, Message: err.Error()}
		}
		config.Store.Root = root
	}
	if err := config.Validate(); err != nil {
		return config, &flotillaerrors.ErrInvalidArgument{Name: "config", Message: err.Error()}
	}
	return config, nil
}

func filesystemRoot(root string) (string, error) {
	if root == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".flotilla"), nil
	}
	expanded, err := homedir.Expand(root)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
