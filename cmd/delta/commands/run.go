package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/delta/src/engine"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a delta node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runDelta,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runDelta(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	e := engine.NewEngine(_config)

	if err := e.Init(); err != nil {
		logger.WithError(err).Error("Cannot initialize engine")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP drops cached deltas without restarting the node
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				logger.Info("SIGHUP received, purging delta cache")
				e.PurgeCache()
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := e.Run(ctx)

	if err := e.Shutdown(); err != nil {
		logger.WithError(err).Warn("Shutdown")
	}

	return runErr
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write JSON logs to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen multiaddr of the libp2p host")
	cmd.Flags().StringSlice("bootstrap", _config.Bootstrap, "Multiaddrs of the peers to dial at startup")
	cmd.Flags().String("transport", _config.Transport, "inmem or libp2p")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB as DFS instead of in-mem")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")
	cmd.Flags().Duration("cache-ttl", _config.CacheTTL, "Lifetime of items in LRU caches")
	cmd.Flags().Int("hash-capacity", _config.HashCapacity, "Number of confirmed delta hashes retained")
	cmd.Flags().String("hashing", _config.Hashing, "blake2b-256, keccak-256 or sha2-256")

	// Delta production
	cmd.Flags().String("policy", _config.Policy, "Transaction acceptance policy: locktime or gas")
	cmd.Flags().Uint64("delta-gas-limit", _config.DeltaGasLimit, "Gas budget of a delta")
	cmd.Flags().Uint64("min-gas-limit", _config.MinGasLimit, "Minimum gas limit of a transaction")
	cmd.Flags().Uint("dfs-retries", _config.DfsRetries, "Retries of a failed DFS write")
	cmd.Flags().Duration("dfs-retry-interval", _config.DfsRetryInterval, "Wait before the first DFS retry")

	// Cycle
	cmd.Flags().Duration("cycle-construction", _config.CycleConstruction, "Duration of the Construction phase")
	cmd.Flags().Duration("cycle-campaigning", _config.CycleCampaigning, "Duration of the Campaigning phase")
	cmd.Flags().Duration("cycle-voting", _config.CycleVoting, "Duration of the Voting phase")
	cmd.Flags().Duration("cycle-synchronisation", _config.CycleSynchronisation, "Duration of the Synchronisation phase")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	if _config.LogFile != "" {
		_config.RootLogger().AddHook(lfshook.NewHook(_config.LogFile, &logrus.JSONFormatter{}))
	}

	logFields := logrus.Fields{
		"DataDir":     _config.DataDir,
		"BindAddr":    _config.BindAddr,
		"Bootstrap":   _config.Bootstrap,
		"Transport":   _config.Transport,
		"ServiceAddr": _config.ServiceAddr,
		"NoService":   _config.NoService,
		"Store":       _config.Store,
		"LogLevel":    _config.LogLevel,
		"Moniker":     _config.Moniker,
		"CacheSize":   _config.CacheSize,
		"CacheTTL":    _config.CacheTTL,
		"Hashing":     _config.Hashing,
		"Policy":      _config.Policy,
		"Cycle": []interface{}{
			_config.CycleConstruction,
			_config.CycleCampaigning,
			_config.CycleVoting,
			_config.CycleSynchronisation,
		},
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/delta.toml (.json, .yaml also work)
	viper.SetConfigName("delta")        // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
