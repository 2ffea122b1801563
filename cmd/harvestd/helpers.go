package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harvestd/harvestd/internal/config"
	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/report"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	if cmd.Flags().Lookup("base-delay") != nil {
		cfg.BaseDelay, err = cmd.Flags().GetDuration("base-delay")
		if err != nil {
			return nil, err
		}
		cfg.JitterRange, err = cmd.Flags().GetDuration("jitter")
		if err != nil {
			return nil, err
		}
		cfg.MaxDelay, err = cmd.Flags().GetDuration("max-delay")
		if err != nil {
			return nil, err
		}
		cfg.RPSCeiling, err = cmd.Flags().GetFloat64("rps")
		if err != nil {
			return nil, err
		}
		cfg.MaxWorkers, err = cmd.Flags().GetInt("workers")
		if err != nil {
			return nil, err
		}
		cfg.MaxRetries, err = cmd.Flags().GetInt("retries")
		if err != nil {
			return nil, err
		}
		cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
		if err != nil {
			return nil, err
		}
	}

	// Load source configurations from config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SourceConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SourceConfigs = &config.File{
			Sources: make(map[string]config.SourceConfig),
		}
	}

	if cmd.Flags().Lookup("json") != nil {
		cfg.JSONReport, err = cmd.Flags().GetBool("json")
		if err != nil {
			return nil, err
		}
		cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
		if err != nil {
			return nil, err
		}
		cfg.ReportFile, err = cmd.Flags().GetString("output")
		if err != nil {
			return nil, err
		}
	}

	// Session database directory (persistent flag on the root command)
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	// Positional arguments are item names
	cfg.Items = args

	// An item list file is merged with the positional names.
	if cmd.Flags().Lookup("list") != nil {
		listFile, err := cmd.Flags().GetString("list")
		if err != nil {
			return nil, err
		}
		if listFile != "" {
			names, err := readItemList(listFile)
			if err != nil {
				return nil, err
			}
			cfg.Items = append(cfg.Items, names...)
		}
	}

	return cfg, nil
}

// readItemList reads item names from a file, one per line. Blank lines
// and lines starting with '#' are skipped.
func readItemList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read item list %s: %w", path, err)
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// outputReport outputs the session report in the requested format.
func outputReport(cfg *config.Config, snapshot *model.BatchSession) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Create/overwrite the output file with secure permissions (0600).
		// Harvested results may contain data that should only be readable
		// by the owner.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(snapshot)
	return err
}
