package common

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// InspectConfig configures the progress inspection tool.
type InspectConfig struct {
	Progress  ProgressConfig
	Failed    bool   // list failed entries
	JSON      bool   // machine readable output
	ExportDir string // rebuild the output tables from stored facts when set
	Tag       string // name segment for rebuilt tables
	Log       LogConfig
}

func LoadInspect(name string, args []string) (*InspectConfig, error) {
	def := DefaultConfig()
	cfg := &InspectConfig{Progress: def.Progress, Log: def.Log}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("progress", cfg.Progress.DSN, "Progress store: SQLite file or postgres:// URL")
	fs.Duration("db-dial-timeout", cfg.Progress.DialTimeout, "Progress store connect timeout")
	fs.Bool("failed", false, "List failed documents with their reasons")
	fs.Bool("json", false, "Print JSON instead of text")
	fs.String("export-dir", "", "Rebuild long/wide xlsx from finished documents into this directory")
	fs.String("tag", "", "Name segment for rebuilt tables, e.g. 20250101_20250430_ndbg")
	fs.String("log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n\nReports what a progress store holds.\n\nOptions:\n", name)
		fs.PrintDefaults()
	}

	if err := bindFlagsToViper(v, fs); err != nil {
		return nil, FatalConfigError("bind flags", err)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, FatalConfigError("parse flags", err)
	}

	cfg.Progress.DSN = v.GetString("progress")
	cfg.Progress.DialTimeout = v.GetDuration("db-dial-timeout")
	cfg.Failed = v.GetBool("failed")
	cfg.JSON = v.GetBool("json")
	cfg.ExportDir = v.GetString("export-dir")
	cfg.Tag = v.GetString("tag")
	cfg.Log.Level = v.GetString("log-level")

	if cfg.Progress.DSN == "" || cfg.Progress.DSN == "memory" {
		return nil, FatalConfigErrorf("progress must name a SQLite file or postgres URL")
	}
	return cfg, nil
}
