package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the producer's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database backing the DFS
	DefaultBadgerFile = "badger_db"
)

// Transports.
const (
	InmemTransport  = "inmem"
	Libp2pTransport = "libp2p"
)

// Acceptance policies.
const (
	LockTimePolicy = "locktime"
	GasPolicy      = "gas"
)

// Default configuration values.
const (
	DefaultLogLevel              = "debug"
	DefaultBindAddr              = "/ip4/127.0.0.1/tcp/1337"
	DefaultTransport             = Libp2pTransport
	DefaultServiceAddr           = "127.0.0.1:8000"
	DefaultStore                 = false
	DefaultCacheSize             = 10000
	DefaultCacheTTL              = 3 * time.Minute
	DefaultHashCapacity          = 10000
	DefaultHashing               = crypto.DefaultHashing
	DefaultPolicy                = GasPolicy
	DefaultDeltaGasLimit         = 8000000
	DefaultMinGasLimit           = 21000
	DefaultDfsRetries            = 4
	DefaultDfsRetryInterval      = 2 * time.Second
	DefaultCycleConstruction     = 5 * time.Second
	DefaultCycleCampaigning      = 5 * time.Second
	DefaultCycleVoting           = 5 * time.Second
	DefaultCycleSynchronisation  = 5 * time.Second
	DefaultPeerConnectionTimeout = 30 * time.Second
)

// Config contains all the configuration properties of a delta node.
type Config struct {
	// DataDir is the top-level directory containing the node's configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the log output.
	LogFile string `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the libp2p multiaddr this node listens on.
	BindAddr string `mapstructure:"listen"`

	// Bootstrap lists the multiaddrs of the peers dialled at startup. They
	// must include the /p2p/<id> component.
	Bootstrap []string `mapstructure:"bootstrap"`

	// Transport selects the broadcaster: inmem or libp2p.
	Transport string `mapstructure:"transport"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates the Badger DFS. Otherwise deltas are kept in memory.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in the delta cache, the voter and
	// the elector.
	CacheSize int `mapstructure:"cache-size"`

	// CacheTTL is how long those items live.
	CacheTTL time.Duration `mapstructure:"cache-ttl"`

	// HashCapacity is the number of confirmed delta hashes retained.
	HashCapacity int `mapstructure:"hash-capacity"`

	// Hashing names the multihash function: blake2b-256, keccak-256 or
	// sha2-256.
	Hashing string `mapstructure:"hashing"`

	// Policy selects which transactions go in a delta: locktime or gas.
	Policy string `mapstructure:"policy"`

	// DeltaGasLimit is the gas budget of a delta under the gas policy.
	DeltaGasLimit uint64 `mapstructure:"delta-gas-limit"`

	// MinGasLimit is the smallest gas limit accepted for a transaction.
	MinGasLimit uint64 `mapstructure:"min-gas-limit"`

	// DfsRetries is the number of retries of a failed DFS write.
	DfsRetries uint `mapstructure:"dfs-retries"`

	// DfsRetryInterval is the wait before the first retry. It doubles every
	// time.
	DfsRetryInterval time.Duration `mapstructure:"dfs-retry-interval"`

	// Cycle phase durations. Each phase spends 40% of its time producing and
	// 40% collecting, except Synchronisation.
	CycleConstruction    time.Duration `mapstructure:"cycle-construction"`
	CycleCampaigning     time.Duration `mapstructure:"cycle-campaigning"`
	CycleVoting          time.Duration `mapstructure:"cycle-voting"`
	CycleSynchronisation time.Duration `mapstructure:"cycle-synchronisation"`

	// Key is the private key of the producer.
	Key *btcec.PrivateKey

	// Registerer receives the node's metrics. Defaults to a fresh registry.
	Registerer prometheus.Registerer

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:              DefaultDataDir(),
		LogLevel:             DefaultLogLevel,
		BindAddr:             DefaultBindAddr,
		Transport:            DefaultTransport,
		ServiceAddr:          DefaultServiceAddr,
		Store:                DefaultStore,
		DatabaseDir:          DefaultDatabaseDir(),
		CacheSize:            DefaultCacheSize,
		CacheTTL:             DefaultCacheTTL,
		HashCapacity:         DefaultHashCapacity,
		Hashing:              DefaultHashing,
		Policy:               DefaultPolicy,
		DeltaGasLimit:        DefaultDeltaGasLimit,
		MinGasLimit:          DefaultMinGasLimit,
		DfsRetries:           DefaultDfsRetries,
		DfsRetryInterval:     DefaultDfsRetryInterval,
		CycleConstruction:    DefaultCycleConstruction,
		CycleCampaigning:     DefaultCycleCampaigning,
		CycleVoting:          DefaultCycleVoting,
		CycleSynchronisation: DefaultCycleSynchronisation,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. It uses the in-memory transport and no service.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Transport = InmemTransport
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "delta".
func (c *Config) Logger() *logrus.Entry {
	return c.RootLogger().WithField("prefix", "delta")
}

// RootLogger returns the logger behind Logger, for hooks to be added to it.
func (c *Config) RootLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Delta")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Delta")
		} else {
			return filepath.Join(home, ".delta")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
