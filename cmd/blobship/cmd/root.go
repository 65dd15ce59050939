package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"blobship/internal/config"
	"blobship/internal/logger"
)

const (
	CustomConfigLocation = "config"
	LogLevel             = "log-level"
)

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	LogLevel:      "logLevel",
	"store":       "store.type",
	"store-root":  "store.root",
	"endpoint":    "store.endpoint",
	"brokers":     "store.brokers",
	"bucket":      "upload.bucket",
	"key-prefix":  "upload.keyPrefix",
	"compression": "upload.compression",
	"addr":        "http.addr",
}

// RootCmd is the root Cobra command that gets called from the main func.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "blobship",
		SilenceUsage: true,
		Short:        "blobship batches log records and ships them to blob storage.",
	}

	addConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		serveCmd(),
		shipCmd(),
	)

	return cmd
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String(CustomConfigLocation, "", "Path to a YAML configuration file")
	fs.String(LogLevel, "info", "Log level (trace, debug, info, warn, error)")
	fs.String("store", "", "Blob store type (filesystem, http, kafka, memory)")
	fs.String("store-root", "", "Root directory of the filesystem store")
	fs.String("endpoint", "", "Base URL of the http store")
	fs.StringSlice("brokers", nil, "Kafka brokers of the kafka store")
	fs.String("bucket", "", "Destination bucket (or topic for the kafka store)")
	fs.String("key-prefix", "", "Object key prefix")
	fs.String("compression", "", "Compression codec (gzip, zstd, lz4, snappy)")
}

// loadConfig resolves defaults, the config file, BLOBSHIP_* env vars and
// explicitly set flags, in increasing precedence, then initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	if path, _ := flags.GetString(CustomConfigLocation); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	logger.InitWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
	return cfg, nil
}
