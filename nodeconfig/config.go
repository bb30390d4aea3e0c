// Package nodeconfig loads the flags and config-file options that wire a
// blockchain.BlockChain and connpool.Pool into a runnable binary. It exists
// only so cmd/corechaind has a concrete, minimal ambient-stack consumer;
// CLI/configuration itself sits outside the chain engine's scope.
package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/nimbusledger/corechain/log"
)

const (
	defaultConfigFilename = "corechaind.conf"
	defaultLogFilename    = "corechaind.log"
	defaultNetwork        = "mainnet"
	defaultLogLevel       = "info"
	defaultMaxPeers       = 32
)

// Config holds every option corechaind accepts, via flag or config file.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store accounts/chain data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`

	Network string `long:"network" description:"Network to connect to: mainnet, testnet, regtest, simnet"`

	Listen           string   `long:"listen" description:"Address to listen for inbound connections (host:port); parsed, but no listener is opened from it"`
	ConnectPeers     []string `long:"connect" description:"Peer address to always connect to (host:port), may be given multiple times; parsed, but nothing is dialed from it"`
	MaxPeers         int      `long:"maxpeers" description:"Peer count shown in the startup status line; the pool's limit is policy.PeerCountMax"`
	DisableListen    bool     `long:"nolisten" description:"Disable inbound connections entirely"`
	AllowInboundSwap bool     `long:"exchangeinbound" description:"Allow accepting inbound connections past the pool's peer limit; no existing connection is closed to make room"`

	LogLevel string `long:"loglevel" description:"Logging level: trace, debug, info, warn, error, critical, off"`

	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`
}

// Load parses command-line flags, falling back to a config file and then
// built-in defaults, and returns the resolved Config along with any
// positional arguments the parser did not consume.
func Load(appName string) (*Config, []string, error) {
	appDir := appDataDir(appName)
	cfg := Config{
		ConfigFile: filepath.Join(appDir, defaultConfigFilename),
		DataDir:    filepath.Join(appDir, "data"),
		LogDir:     filepath.Join(appDir, "logs"),
		Network:    defaultNetwork,
		MaxPeers:   defaultMaxPeers,
		LogLevel:   defaultLogLevel,
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	if _, err := preParser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil, nil, err
		}
	}
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	remaining, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}

	return &cfg, remaining, nil
}

// LogFilePath returns the path of the rotating log file under LogDir.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// LevelOrDefault parses LogLevel, falling back to log.LevelInfo on an
// unrecognized value.
func (c *Config) LevelOrDefault() log.Level {
	lvl, _ := log.LevelFromString(strings.ToLower(c.LogLevel))
	return lvl
}

func version() string { return "0.1.0" }

// appDataDir returns the application data directory for appName:
// $HOME/.appName (falling back to os.UserHomeDir, then ./.appName) on
// every OS, with no XDG or registry lookups.
func appDataDir(appName string) string {
	if appName == "" || appName == "." {
		return "."
	}
	appName = strings.TrimPrefix(appName, ".")

	var home string
	switch {
	case os.Getenv("HOME") != "":
		home = os.Getenv("HOME")
	default:
		if dir, err := os.UserHomeDir(); err == nil {
			home = dir
		}
	}
	if home == "" {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(home, "."+appName)
}
