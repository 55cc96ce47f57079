package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

const (
	DefaultListingURL = "http://www.cninfo.com.cn/new/hisAnnouncement/query"
	DefaultStaticURL  = "https://static.cninfo.com.cn/"
)

// DiscoverConfig configures the listing crawler that produces descriptor tables.
type DiscoverConfig struct {
	Start      string // YYYY-MM-DD
	End        string // YYYY-MM-DD
	ReportType string
	Exchanges  []string
	Mode       string // day | week | all
	TargetYear int    // 0 = no fiscal-year filter
	OutputDir  string
	ListingURL string
	StaticURL  string
	PageSize   int
	MaxPages   int
	Rate       float64
	Timeout    time.Duration
	UserAgent  string
	Referer    string
	Verify     bool // check each PDF link before writing it
	Log        LogConfig
}

func DefaultDiscoverConfig() *DiscoverConfig {
	return &DiscoverConfig{
		ReportType: "annual",
		Exchanges:  []string{"szse", "sse", "bj"},
		Mode:       "all",
		OutputDir:  ".",
		ListingURL: DefaultListingURL,
		StaticURL:  DefaultStaticURL,
		PageSize:   30,
		MaxPages:   500,
		Rate:       3,
		Timeout:    30 * time.Second,
		UserAgent:  DefaultUserAgent,
		Referer:    DefaultReferer,
		Log:        LogConfig{Level: DefaultLogLevel, Format: "text"},
	}
}

// LoadDiscover parses the discover command line on top of DATARES_* variables.
func LoadDiscover(name string, args []string) (*DiscoverConfig, error) {
	cfg := DefaultDiscoverConfig()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("start", cfg.Start, "First announcement date (YYYY-MM-DD)")
	fs.String("end", cfg.End, "Last announcement date (YYYY-MM-DD)")
	fs.String("type", cfg.ReportType, "Report type: annual, semi, q1, q3")
	fs.StringSlice("exchanges", cfg.Exchanges, "Exchanges to query: sse, szse, bj, neeq, star")
	fs.String("mode", cfg.Mode, "Query window: day, week or all")
	fs.Int("year", cfg.TargetYear, "Keep only reports for this fiscal year (0 = all)")
	fs.String("output-dir", cfg.OutputDir, "Directory for the listed_companies csv")
	fs.String("listing-url", cfg.ListingURL, "Announcement query endpoint")
	fs.String("static-url", cfg.StaticURL, "Prefix joined with adjunct URLs")
	fs.Int("page-size", cfg.PageSize, "Announcements per page")
	fs.Int("max-pages", cfg.MaxPages, "Hard page cap per exchange and window")
	fs.Float64("rate", cfg.Rate, "Max listing requests per second")
	fs.Duration("timeout", cfg.Timeout, "Per-request HTTP timeout")
	fs.String("user-agent", cfg.UserAgent, "User-Agent header")
	fs.String("referer", cfg.Referer, "Referer header")
	fs.Bool("verify", cfg.Verify, "Check that every PDF link answers before listing it")
	fs.String("log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", cfg.Log.Format, "Log format (text, json)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n\nLists periodic reports and writes a descriptor csv.\n\nOptions:\n", name)
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

	cfg.Start = v.GetString("start")
	cfg.End = v.GetString("end")
	cfg.ReportType = v.GetString("type")
	cfg.Exchanges = v.GetStringSlice("exchanges")
	cfg.Mode = v.GetString("mode")
	cfg.TargetYear = v.GetInt("year")
	cfg.OutputDir = v.GetString("output-dir")
	cfg.ListingURL = v.GetString("listing-url")
	cfg.StaticURL = v.GetString("static-url")
	cfg.PageSize = v.GetInt("page-size")
	cfg.MaxPages = v.GetInt("max-pages")
	cfg.Rate = v.GetFloat64("rate")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.UserAgent = v.GetString("user-agent")
	cfg.Referer = v.GetString("referer")
	cfg.Verify = v.GetBool("verify")
	cfg.Log.Level = v.GetString("log-level")
	cfg.Log.Format = v.GetString("log-format")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *DiscoverConfig) Validate() error {
	v := NewValidator().
		Field("start", c.Start, Required, ISODate).
		Field("end", c.End, Required, ISODate).
		Field("listing-url", c.ListingURL, HTTPURL).
		Field("static-url", c.StaticURL, HTTPURL)
	if v.HasErrors() {
		return FatalConfigError(v.ErrorMessage(), nil)
	}
	if c.End < c.Start {
		return FatalConfigErrorf("end %s is before start %s", c.End, c.Start)
	}
	switch c.Mode {
	case "day", "week", "all":
	default:
		return FatalConfigErrorf("mode must be day, week or all, got %q", c.Mode)
	}
	if len(c.Exchanges) == 0 {
		return FatalConfigErrorf("at least one exchange is required")
	}
	if _, ok := constants.ParseReportType(c.ReportType); !ok {
		return FatalConfigErrorf("unknown report type %q", c.ReportType)
	}
	if c.PageSize < 1 || c.MaxPages < 1 {
		return FatalConfigErrorf("page-size and max-pages must be positive")
	}
	return nil
}
