package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertexdb/vertexdb/pkg/config"
	"github.com/vertexdb/vertexdb/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vertexdb",
	Short: "vertexdb - a strongly typed graph database engine",
	Long: `vertexdb is the storage and query engine at the core of a
strongly typed graph database: schema-validated entities, relations,
and attributes, MVCC snapshot isolation, and a cost-based pattern-query
planner and executor.

This binary is a debugging and demonstration harness over that engine,
not a client for a networked server.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vertexdb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./vertexdb-data", "Root directory holding every database")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file; flags override its values")

	cobra.OnInitialize(applyConfigFile, initLogging)

	rootCmd.AddCommand(databaseCmd)
	rootCmd.AddCommand(queryCmd)
}

// applyConfigFile loads --config, if given, and uses it to replace any
// flag default the caller did not explicitly override on the command
// line. An explicit flag always wins over the file.
func applyConfigFile() {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read config %q: %v\n", path, err)
		os.Exit(1)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: parse config %q: %v\n", path, err)
		os.Exit(1)
	}

	flags := rootCmd.PersistentFlags()
	if !flags.Changed("data-dir") {
		_ = flags.Set("data-dir", cfg.DataDirectory)
	}
	if !flags.Changed("log-level") && cfg.DevelopmentMode {
		_ = flags.Set("log-level", "debug")
	}
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
