package common

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "DATARES"

	DefaultWorkers     = 5
	DefaultMaxAttempts = 3
	DefaultProgressDSN = "datares_progress.db"
	DefaultCacheDir    = "reports_pdf"
	DefaultLogLevel    = "info"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultReferer     = "http://www.cninfo.com.cn/new/commonUrl/pageOfSearch?url=disclosure/list/search"
)

var allowedLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds all configuration for a pipeline run
type Config struct {
	Source   SourceConfig
	Fetch    FetchConfig
	Pipeline PipelineConfig
	Progress ProgressConfig
	Output   OutputConfig
	Extract  ExtractConfig
	Server   ServerConfig
	Log      LogConfig
}

// SourceConfig selects the descriptor table. An empty Path means auto-discovery in Dir.
type SourceConfig struct {
	Path string
	Dir  string
}

// FetchConfig holds network, retry and cache settings
type FetchConfig struct {
	Timeout       time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Jitter        float64 // fraction of the computed delay, 0..1
	UserAgent     string
	Referer       string
	RatePerSecond float64 // 0 disables pacing
	Burst         int
	CacheDir      string
	Download      bool // persist fetched documents under CacheDir
	ObjectStore   ObjectStoreConfig
}

// ObjectStoreConfig optionally mirrors cached documents to an S3 compatible bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// PipelineConfig holds scheduler settings
type PipelineConfig struct {
	Workers         int
	QueueSize       int
	DocTimeout      time.Duration
	CheckpointEvery int // flush tables every N completed documents, 0 = only at the end
}

// ProgressConfig selects the progress store. DSN is a SQLite path, "memory",
// or a postgres:// URL.
type ProgressConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

type OutputConfig struct {
	Dir string
}

// ExtractConfig holds text materialization and scan settings
type ExtractConfig struct {
	RulesFile    string
	Pdftotext    string
	UsePdftotext bool
}

// ServerConfig holds the optional observability listeners; empty disables.
type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{Dir: "."},
		Fetch: FetchConfig{
			Timeout:       45 * time.Second,
			MaxAttempts:   DefaultMaxAttempts,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			Jitter:        0.2,
			UserAgent:     DefaultUserAgent,
			Referer:       DefaultReferer,
			RatePerSecond: 0,
			Burst:         1,
			CacheDir:      DefaultCacheDir,
			Download:      true,
		},
		Pipeline: PipelineConfig{
			Workers:    DefaultWorkers,
			QueueSize:  DefaultWorkers,
			DocTimeout: 3 * time.Minute,
		},
		Progress: ProgressConfig{
			DSN:             DefaultProgressDSN,
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Output:  OutputConfig{Dir: "."},
		Extract: ExtractConfig{Pdftotext: "pdftotext"},
		Log:     LogConfig{Level: DefaultLogLevel, Format: "text"},
	}
}

// Load parses args (without the program name) on top of DATARES_* environment
// variables and the defaults.
func Load(name string, args []string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	setupViperEnvironment(v, cfg)
	defineCommandLineFlags(fs, cfg)
	if err := bindFlagsToViper(v, fs); err != nil {
		return nil, FatalConfigError("bind flags", err)
	}
	setupUsageMessage(fs, name)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, FatalConfigError("parse flags", err)
	}

	populateConfigFromViper(v, cfg)
	if v.GetBool("no-download") {
		cfg.Fetch.Download = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("csv-file", cfg.Source.Path)
	v.SetDefault("source-dir", cfg.Source.Dir)
	v.SetDefault("timeout", cfg.Fetch.Timeout)
	v.SetDefault("max-attempts", cfg.Fetch.MaxAttempts)
	v.SetDefault("base-delay", cfg.Fetch.BaseDelay)
	v.SetDefault("max-delay", cfg.Fetch.MaxDelay)
	v.SetDefault("jitter", cfg.Fetch.Jitter)
	v.SetDefault("user-agent", cfg.Fetch.UserAgent)
	v.SetDefault("referer", cfg.Fetch.Referer)
	v.SetDefault("rate", cfg.Fetch.RatePerSecond)
	v.SetDefault("burst", cfg.Fetch.Burst)
	v.SetDefault("cache-dir", cfg.Fetch.CacheDir)
	v.SetDefault("download", cfg.Fetch.Download)
	v.SetDefault("no-download", false)
	v.SetDefault("s3-endpoint", "")
	v.SetDefault("s3-access-key", "")
	v.SetDefault("s3-secret-key", "")
	v.SetDefault("s3-bucket", "")
	v.SetDefault("s3-ssl", false)
	v.SetDefault("workers", cfg.Pipeline.Workers)
	v.SetDefault("queue-size", cfg.Pipeline.QueueSize)
	v.SetDefault("doc-timeout", cfg.Pipeline.DocTimeout)
	v.SetDefault("checkpoint-every", cfg.Pipeline.CheckpointEvery)
	v.SetDefault("progress", cfg.Progress.DSN)
	v.SetDefault("db-max-conns", cfg.Progress.MaxConns)
	v.SetDefault("db-min-conns", cfg.Progress.MinConns)
	v.SetDefault("db-dial-timeout", cfg.Progress.DialTimeout)
	v.SetDefault("db-statement-timeout", cfg.Progress.StatementTimeout)
	v.SetDefault("output-dir", cfg.Output.Dir)
	v.SetDefault("rules", cfg.Extract.RulesFile)
	v.SetDefault("pdftotext", cfg.Extract.Pdftotext)
	v.SetDefault("use-pdftotext", cfg.Extract.UsePdftotext)
	v.SetDefault("grpc-addr", cfg.Server.GRPCAddr)
	v.SetDefault("http-addr", cfg.Server.HTTPAddr)
	v.SetDefault("log-level", cfg.Log.Level)
	v.SetDefault("log-format", cfg.Log.Format)
}

func defineCommandLineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("csv-file", cfg.Source.Path, "Descriptor table (.csv or .xlsx); empty = newest listed_companies_*.csv in --source-dir")
	fs.String("source-dir", cfg.Source.Dir, "Directory searched when --csv-file is empty")
	fs.Duration("timeout", cfg.Fetch.Timeout, "Per-request HTTP timeout")
	fs.Int("max-attempts", cfg.Fetch.MaxAttempts, "Fetch attempts per document for transient errors")
	fs.Duration("base-delay", cfg.Fetch.BaseDelay, "First retry delay (doubles per attempt)")
	fs.Duration("max-delay", cfg.Fetch.MaxDelay, "Retry delay cap")
	fs.Float64("jitter", cfg.Fetch.Jitter, "Retry jitter as a fraction of the delay (0..1)")
	fs.String("user-agent", cfg.Fetch.UserAgent, "User-Agent header")
	fs.String("referer", cfg.Fetch.Referer, "Referer header")
	fs.Float64("rate", cfg.Fetch.RatePerSecond, "Max document requests per second (0 = unlimited)")
	fs.Int("burst", cfg.Fetch.Burst, "Request burst allowed by --rate")
	fs.String("cache-dir", cfg.Fetch.CacheDir, "Local document cache directory")
	fs.Bool("download", cfg.Fetch.Download, "Persist fetched documents under --cache-dir")
	fs.Bool("no-download", false, "Parse documents in memory without saving them")
	fs.String("s3-endpoint", "", "Object store endpoint mirroring the document cache")
	fs.String("s3-access-key", "", "Object store access key")
	fs.String("s3-secret-key", "", "Object store secret key")
	fs.String("s3-bucket", "", "Object store bucket")
	fs.Bool("s3-ssl", false, "Use TLS for the object store")
	fs.Int("workers", cfg.Pipeline.Workers, "Concurrent documents in flight")
	fs.Int("queue-size", cfg.Pipeline.QueueSize, "Dispatch queue depth")
	fs.Duration("doc-timeout", cfg.Pipeline.DocTimeout, "Per-document processing timeout")
	fs.Int("checkpoint-every", cfg.Pipeline.CheckpointEvery, "Write output tables every N finished documents (0 = only at the end)")
	fs.String("progress", cfg.Progress.DSN, "Progress store: SQLite file, 'memory', or postgres:// URL")
	fs.Int32("db-max-conns", cfg.Progress.MaxConns, "Postgres pool max connections")
	fs.Int32("db-min-conns", cfg.Progress.MinConns, "Postgres pool min connections")
	fs.Duration("db-dial-timeout", cfg.Progress.DialTimeout, "Progress store connect timeout")
	fs.Duration("db-statement-timeout", cfg.Progress.StatementTimeout, "Postgres statement_timeout (0 = server default)")
	fs.String("output-dir", cfg.Output.Dir, "Directory for long/wide xlsx output")
	fs.String("rules", cfg.Extract.RulesFile, "YAML file overriding extraction anchors")
	fs.String("pdftotext", cfg.Extract.Pdftotext, "pdftotext binary used as fallback text extractor")
	fs.Bool("use-pdftotext", cfg.Extract.UsePdftotext, "Fall back to pdftotext when the built-in PDF reader yields no text")
	fs.String("grpc-addr", cfg.Server.GRPCAddr, "Serve gRPC health on this address during the run")
	fs.String("http-addr", cfg.Server.HTTPAddr, "Serve /healthz and /status on this address during the run")
	fs.String("log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", cfg.Log.Format, "Log format (text, json)")
}

func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func setupUsageMessage(fs *pflag.FlagSet, name string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
		fmt.Fprintf(os.Stderr, "\nExtracts data-resource disclosures from listed-company reports.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery option can also be set as %s_<OPTION>, e.g. %s_WORKERS=8.\n", EnvPrefix, EnvPrefix)
	}
}

func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Source.Path = v.GetString("csv-file")
	cfg.Source.Dir = v.GetString("source-dir")
	cfg.Fetch.Timeout = v.GetDuration("timeout")
	cfg.Fetch.MaxAttempts = v.GetInt("max-attempts")
	cfg.Fetch.BaseDelay = v.GetDuration("base-delay")
	cfg.Fetch.MaxDelay = v.GetDuration("max-delay")
	cfg.Fetch.Jitter = v.GetFloat64("jitter")
	cfg.Fetch.UserAgent = v.GetString("user-agent")
	cfg.Fetch.Referer = v.GetString("referer")
	cfg.Fetch.RatePerSecond = v.GetFloat64("rate")
	cfg.Fetch.Burst = v.GetInt("burst")
	cfg.Fetch.CacheDir = v.GetString("cache-dir")
	cfg.Fetch.Download = v.GetBool("download")
	cfg.Fetch.ObjectStore = ObjectStoreConfig{
		Endpoint:  v.GetString("s3-endpoint"),
		AccessKey: v.GetString("s3-access-key"),
		SecretKey: v.GetString("s3-secret-key"),
		Bucket:    v.GetString("s3-bucket"),
		UseSSL:    v.GetBool("s3-ssl"),
	}
	cfg.Pipeline.Workers = v.GetInt("workers")
	cfg.Pipeline.QueueSize = v.GetInt("queue-size")
	cfg.Pipeline.DocTimeout = v.GetDuration("doc-timeout")
	cfg.Pipeline.CheckpointEvery = v.GetInt("checkpoint-every")
	cfg.Progress.DSN = v.GetString("progress")
	cfg.Progress.MaxConns = v.GetInt32("db-max-conns")
	cfg.Progress.MinConns = v.GetInt32("db-min-conns")
	cfg.Progress.DialTimeout = v.GetDuration("db-dial-timeout")
	cfg.Progress.StatementTimeout = v.GetDuration("db-statement-timeout")
	cfg.Output.Dir = v.GetString("output-dir")
	cfg.Extract.RulesFile = v.GetString("rules")
	cfg.Extract.Pdftotext = v.GetString("pdftotext")
	cfg.Extract.UsePdftotext = v.GetBool("use-pdftotext")
	cfg.Server.GRPCAddr = v.GetString("grpc-addr")
	cfg.Server.HTTPAddr = v.GetString("http-addr")
	cfg.Log.Level = v.GetString("log-level")
	cfg.Log.Format = v.GetString("log-format")
}

// Validate checks the configuration; every failure is a FatalConfigError.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return FatalConfigErrorf("workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 0 {
		return FatalConfigErrorf("queue-size must not be negative, got %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.CheckpointEvery < 0 {
		return FatalConfigErrorf("checkpoint-every must not be negative, got %d", c.Pipeline.CheckpointEvery)
	}
	if c.Fetch.MaxAttempts < 1 {
		return FatalConfigErrorf("max-attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.BaseDelay < 0 || c.Fetch.MaxDelay < 0 {
		return FatalConfigErrorf("retry delays must not be negative")
	}
	if c.Fetch.Jitter < 0 || c.Fetch.Jitter > 1 {
		return FatalConfigErrorf("jitter must be within [0,1], got %v", c.Fetch.Jitter)
	}
	if c.Fetch.RatePerSecond < 0 {
		return FatalConfigErrorf("rate must not be negative")
	}
	if c.Fetch.Download && c.Fetch.CacheDir == "" {
		return FatalConfigErrorf("cache-dir is required when download is enabled")
	}
	if c.Progress.DSN == "" {
		return FatalConfigErrorf("progress store DSN is required")
	}
	if c.Output.Dir == "" {
		return FatalConfigErrorf("output-dir is required")
	}
	if c.Source.Path == "" && c.Source.Dir == "" {
		return FatalConfigErrorf("either csv-file or source-dir is required")
	}
	if !slices.Contains(allowedLogLevels, strings.ToLower(c.Log.Level)) {
		return FatalConfigErrorf("invalid log level %q, must be one of %v", c.Log.Level, allowedLogLevels)
	}
	return nil
}
