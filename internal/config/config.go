// Package config resolves the command line surfaces of both binaries.
// Values are layered: an explicit flag wins over the POEK_-prefixed
// environment, which wins over the optional YAML file, which wins over
// the defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the first port tried for discovery and for each
// served item.
const DefaultPort = 1337

const envPrefix = "POEK_"

// File is the optional YAML configuration shared by both binaries.
type File struct {
	Port        uint16 `yaml:"port"`
	Host        string `yaml:"host"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Poke is the resolved serve-role configuration.
type Poke struct {
	Port        uint16
	Verbose     bool
	Quiet       bool
	WatchDir    string
	MetricsAddr string
	LogFile     string
	Paths       []string
}

// Peek is the resolved consume-role configuration. An empty Host means
// discovery by broadcast.
type Peek struct {
	Port    uint16
	Verbose bool
	Quiet   bool
	Host    string
	LogFile string
}

// LoadPoke parses the serve-role command line.
func LoadPoke(args []string) (Poke, error) {
	fs := flag.NewFlagSet("poke", flag.ContinueOnError)
	var (
		verbose bool
		quiet   bool
		port    uint
		watch   string
		metrics string
		logFile string
		cfgPath string
	)
	fs.BoolVar(&verbose, "v", false, "log debug detail")
	fs.BoolVar(&verbose, "verbose", false, "log debug detail")
	fs.BoolVar(&quiet, "q", false, "log warnings and errors only")
	fs.BoolVar(&quiet, "quiet", false, "log warnings and errors only")
	fs.UintVar(&port, "p", DefaultPort, "first port tried for discovery and served items")
	fs.UintVar(&port, "port", DefaultPort, "first port tried for discovery and served items")
	fs.StringVar(&watch, "w", "", "watch a directory and serve everything added to it")
	fs.StringVar(&watch, "watch", "", "watch a directory and serve everything added to it")
	fs.StringVar(&metrics, "metrics-addr", "", "expose Prometheus metrics on this address")
	fs.StringVar(&logFile, "log-file", "", "append JSON log entries to this file")
	fs.StringVar(&cfgPath, "config", "", "YAML configuration file")
	fs.Usage = usage(fs, "poke [options] <path>...",
		"Serve files and directories to anyone who asks on the local network.")
	if err := fs.Parse(args); err != nil {
		return Poke{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var file File
	if cfgPath != "" {
		var err error
		if file, err = LoadFile(cfgPath); err != nil {
			return Poke{}, err
		}
	}

	cfg := Poke{
		Verbose:  verbose,
		Quiet:    quiet,
		WatchDir: watch,
		Paths:    fs.Args(),
	}

	var err error
	if cfg.Port, err = resolvePort(set["p"] || set["port"], port, file.Port); err != nil {
		return Poke{}, err
	}
	cfg.LogFile = resolveString(set["log-file"], logFile, "LOG_FILE", file.LogFile)
	cfg.MetricsAddr = resolveString(set["metrics-addr"], metrics, "METRICS_ADDR", file.MetricsAddr)

	if len(cfg.Paths) == 0 && cfg.WatchDir == "" {
		return Poke{}, errors.New("at least one path to serve is required")
	}
	return cfg, nil
}

// LoadPeek parses the consume-role command line. The single optional
// positional argument names a host to ask directly instead of
// broadcasting.
func LoadPeek(args []string) (Peek, error) {
	fs := flag.NewFlagSet("peek", flag.ContinueOnError)
	var (
		verbose bool
		quiet   bool
		port    uint
		logFile string
		cfgPath string
	)
	fs.BoolVar(&verbose, "v", false, "log debug detail")
	fs.BoolVar(&verbose, "verbose", false, "log debug detail")
	fs.BoolVar(&quiet, "q", false, "log warnings and errors only")
	fs.BoolVar(&quiet, "quiet", false, "log warnings and errors only")
	fs.UintVar(&port, "p", DefaultPort, "discovery port to ask on")
	fs.UintVar(&port, "port", DefaultPort, "discovery port to ask on")
	fs.StringVar(&logFile, "log-file", "", "append JSON log entries to this file")
	fs.StringVar(&cfgPath, "config", "", "YAML configuration file")
	fs.Usage = usage(fs, "peek [options] [host]",
		"Browse and download what the local network is serving.")
	if err := fs.Parse(args); err != nil {
		return Peek{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var file File
	if cfgPath != "" {
		var err error
		if file, err = LoadFile(cfgPath); err != nil {
			return Peek{}, err
		}
	}

	cfg := Peek{Verbose: verbose, Quiet: quiet}

	var err error
	if cfg.Port, err = resolvePort(set["p"] || set["port"], port, file.Port); err != nil {
		return Peek{}, err
	}
	cfg.LogFile = resolveString(set["log-file"], logFile, "LOG_FILE", file.LogFile)

	switch rest := fs.Args(); len(rest) {
	case 0:
		cfg.Host = envOr("HOST", file.Host)
	case 1:
		cfg.Host = rest[0]
	default:
		return Peek{}, errors.New("at most one host may be given")
	}
	return cfg, nil
}

// Level maps the verbosity flags to a logging level.
func (c Poke) Level() string { return level(c.Verbose, c.Quiet) }

// Level maps the verbosity flags to a logging level.
func (c Peek) Level() string { return level(c.Verbose, c.Quiet) }

func level(verbose, quiet bool) string {
	switch {
	case verbose:
		return "debug"
	case quiet:
		return "warn"
	default:
		return "info"
	}
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

func resolvePort(flagSet bool, flagVal uint, fileVal uint16) (uint16, error) {
	if flagSet {
		if flagVal == 0 || flagVal > 65535 {
			return 0, fmt.Errorf("port %d out of range", flagVal)
		}
		return uint16(flagVal), nil
	}
	if v := envUint16("PORT"); v != 0 {
		return v, nil
	}
	if fileVal != 0 {
		return fileVal, nil
	}
	return DefaultPort, nil
}

func resolveString(flagSet bool, flagVal, envKey, fileVal string) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv(envPrefix + envKey); v != "" {
		return v
	}
	return fileVal
}

func envOr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envUint16(key string) uint16 {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil || n == 0 {
		return 0
	}
	return uint16(n)
}

func usage(fs *flag.FlagSet, synopsis, blurb string) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "Usage: %s\n\n%s\n\nOptions:\n", synopsis, blurb)
		fs.PrintDefaults()
	}
}
