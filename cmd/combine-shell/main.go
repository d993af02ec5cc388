package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/config"
	"github.com/KevoDB/combiner/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".reducer",
		readline.PcItem("sum"),
		readline.PcItem("max"),
		readline.PcItem("min"),
		readline.PcItem("latest"),
	),
	readline.PcItem(".families",
		readline.PcItem("include"),
		readline.PcItem("exclude"),
	),
	readline.PcItem(".save"),
	readline.PcItem(".load"),
	readline.PcItem("PUT"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
	readline.PcItem("RAW"),
	readline.PcItem("SEEK"),
	readline.PcItem("PSCAN"),
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	backend := flag.String("backend", "", "Storage backend (memory or pebble)")
	dataDir := flag.String("dir", "", "Data directory for the pebble backend")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *backend, *dataDir, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.NewStandardLogger(log.WithLevel(level))
	log.SetDefaultLogger(logger)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	if provider, ok := tel.(*telemetry.TelemetryProvider); ok {
		if addr := provider.PrometheusAddr(); addr != "" {
			logger.Info("Serving metrics at http://%s/metrics", addr)
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown failed: %v", err)
		}
	}()

	store, err := openStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s store: %s\n", cfg.Backend, err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing store: %s\n", err)
		}
	}()

	sh := newShell(os.Stdout, store, logger, tel, cfg.ScanConcurrency)
	if err := sh.setReducer(cfg.Reducer, cfg.ReducerOptions); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring reducer: %s\n", err)
		return
	}

	fmt.Println("combine-shell version 1.0.0")
	fmt.Printf("Backend: %s, reducer: %s\n", cfg.Backend, cfg.Reducer)
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".combine_shell_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "combine> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		return
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if sh.execute(line) {
			fmt.Println("Goodbye!")
			return
		}
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides
func loadConfig(path, backend, dataDir, logLevel string) (*config.Config, error) {
	cfg := config.NewDefaultConfig("")
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Telemetry.LoadFromEnv()

	cfg.Update(func(c *config.Config) {
		if dataDir != "" {
			c.DataDir = dataDir
			if backend == "" {
				c.Backend = config.BackendPebble
			}
		}
		if backend != "" {
			c.Backend = config.Backend(backend)
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
