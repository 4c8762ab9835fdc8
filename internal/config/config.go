package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"monitor.chat/stat-recorder-backend/internal/event"
)

var ErrMissingTemplate = errors.New("missing log path template")

// Statistic holds the per-kind log path templates. Each may contain the
// {yyyy}, {mm} and {dd} placeholders.
type Statistic struct {
	UsersLog  string `toml:"users_log"`
	StatsLog  string `toml:"stats_log"`
	SpeedsLog string `toml:"speeds_log"`
}

// File is the layout of the optional TOML config file.
type File struct {
	Statistic Statistic `toml:"statistic"`
}

// Config holds instance-level configuration for the service.
type Config struct {
	ListenAddr            string
	HTTPAddr              string
	MaxReceiveMessageSize int
	ConfigFile            string

	Statistic Statistic

	Retention       time.Duration
	IdleBackoff     time.Duration
	MaxQueue        int
	DedupSize       int
	DedupTTL        time.Duration
	GracefulTimeout time.Duration
}

// RegisterFlags registers CLI flags and returns a reader that captures them after flag.Parse().
func RegisterFlags() func() Config {
	listenAddr := flag.String("listenAddr", "localhost:4317", "The OTLP/gRPC listen address")
	httpAddr := flag.String("httpAddr", "localhost:8080", "The report HTTP listen address (empty disables)")
	maxRecv := flag.Int("maxReceiveMessageSize", 16*1024*1024, "The max message size in bytes the server can receive")
	configFile := flag.String("config", "", "Path to a TOML config file with a [statistic] table")

	usersLog := flag.String("usersLog", "", "Users log path template, overrides the config file")
	statsLog := flag.String("statsLog", "", "Stats log path template, overrides the config file")
	speedsLog := flag.String("speedsLog", "", "Speeds log path template, overrides the config file")

	retention := flag.Duration("retention", 7*24*time.Hour, "Records older than this are discarded")
	idle := flag.Duration("idleBackoff", time.Second, "Recorder sleep when the queue is empty")
	maxQueue := flag.Int("maxQueue", 0, "Max ingestion queue size, oldest dropped first (0 = unbounded)")
	dedupSize := flag.Int("dedupSize", 65536, "Number of message signatures remembered for duplicate detection")
	dedupTTL := flag.Duration("dedupTTL", time.Hour, "How long a message signature is remembered")
	graceful := flag.Duration("gracefulTimeout", 10*time.Second, "Graceful shutdown timeout")

	return func() Config {
		return Config{
			ListenAddr:            *listenAddr,
			HTTPAddr:              *httpAddr,
			MaxReceiveMessageSize: *maxRecv,
			ConfigFile:            *configFile,
			Statistic: Statistic{
				UsersLog:  *usersLog,
				StatsLog:  *statsLog,
				SpeedsLog: *speedsLog,
			},
			Retention:       *retention,
			IdleBackoff:     *idle,
			MaxQueue:        *maxQueue,
			DedupSize:       *dedupSize,
			DedupTTL:        *dedupTTL,
			GracefulTimeout: *graceful,
		}
	}
}

// LoadFile reads the TOML file at path. Templates already set on cfg (from
// flags) win over the file.
func LoadFile(cfg Config, path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return cfg, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg.ConfigFile = path
	cfg.Statistic.UsersLog = firstNonEmpty(cfg.Statistic.UsersLog, f.Statistic.UsersLog)
	cfg.Statistic.StatsLog = firstNonEmpty(cfg.Statistic.StatsLog, f.Statistic.StatsLog)
	cfg.Statistic.SpeedsLog = firstNonEmpty(cfg.Statistic.SpeedsLog, f.Statistic.SpeedsLog)
	return cfg, nil
}

// Templates maps each log kind to its path template.
func (c Config) Templates() map[event.Kind]string {
	return map[event.Kind]string{
		event.KindUsers:  c.Statistic.UsersLog,
		event.KindStats:  c.Statistic.StatsLog,
		event.KindSpeeds: c.Statistic.SpeedsLog,
	}
}

// Validate fails when any log path template is missing.
func (c Config) Validate() error {
	var missing []string
	for _, kind := range event.Kinds {
		if strings.TrimSpace(c.Templates()[kind]) == "" {
			missing = append(missing, string(kind)+"_log")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTemplate, strings.Join(missing, ", "))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
