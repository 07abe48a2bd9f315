// Package config loads the appliance's runtime configuration: supervisor
// restart policy, watchdog thresholds, the hardware-encoder candidate list,
// local muxer/relay endpoints, and logging setup. It follows the teacher's
// viper-based load-then-validate-then-watch shape.
package config

import (
	"fmt"
	"strings"
	"time"
)

// SupervisorConfig tunes the Process Supervisor's restart policy.
type SupervisorConfig struct {
	MaxRestarts     int           `mapstructure:"max_restarts"`
	BackoffInitial  time.Duration `mapstructure:"backoff_initial"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	StopGraceful    time.Duration `mapstructure:"stop_graceful_timeout"`
	HardwareEncoders []string     `mapstructure:"hardware_encoders"`
}

// WatchdogConfig tunes the Watchdog Manager's hysteresis.
type WatchdogConfig struct {
	CheckInterval         time.Duration `mapstructure:"check_interval"`
	UnhealthyThreshold    int           `mapstructure:"unhealthy_threshold"`
	RecoveryThreshold     int           `mapstructure:"recovery_threshold"`
	RestartCooldown       time.Duration `mapstructure:"restart_cooldown"`
	RemoteProbeRatePerSec float64       `mapstructure:"remote_probe_rate_per_sec"`
}

// RelayConfig tunes the Camera Relay Manager.
type RelayConfig struct {
	LocalHost           string        `mapstructure:"local_host"`
	LocalPortRangeLow   int           `mapstructure:"local_port_range_low"`
	LocalPortRangeHigh  int           `mapstructure:"local_port_range_high"`
	HealthyAfterProbes  int           `mapstructure:"healthy_after_probes"`
	CuePrepareTimeout   time.Duration `mapstructure:"cue_prepare_timeout"`
	HealthProbeInterval time.Duration `mapstructure:"health_probe_interval"`
}

// MuxerConfig points at the local RTMP relay / preview muxer admin API.
type MuxerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PTZConfig tunes the PTZ Controller's ONVIF client.
type PTZConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SettleTime     time.Duration `mapstructure:"settle_time"`
}

// PreviewConfig points the Preview Server Adapter at the fixed publish and
// playback URLs the Stream Router uses while in PREVIEW mode.
type PreviewConfig struct {
	PublishURL  string `mapstructure:"publish_url"`
	PlaybackURL string `mapstructure:"playback_url"`
}

// LoggingConfig is re-declared here (rather than imported from the logging
// package) so that the whole Config tree unmarshals from one YAML document
// with mapstructure, matching the teacher's config.go layout.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config is the appliance's full runtime configuration tree.
type Config struct {
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Muxer      MuxerConfig      `mapstructure:"muxer"`
	PTZ        PTZConfig        `mapstructure:"ptz"`
	Preview    PreviewConfig    `mapstructure:"preview"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	// DatabaseURL, UploadsDir, and CORSAllowOrigins are consumed by the
	// out-of-scope REST/persistence layer; the CORE parses them anyway so
	// a single config file and env-var set serves both layers without
	// drift (see SPEC_FULL.md §4 ambient stack note).
	DatabaseURL      string `mapstructure:"database_url"`
	UploadsDir       string `mapstructure:"uploads_dir"`
	CORSAllowOrigins string `mapstructure:"cors_allow_origins"`

	RTMPRelayHost string `mapstructure:"rtmp_relay_host"`
	RTMPRelayPort int    `mapstructure:"rtmp_relay_port"`
}

func setDefaults(c *Config) {
	if c.Supervisor.MaxRestarts == 0 {
		c.Supervisor.MaxRestarts = 10
	}
	if c.Supervisor.BackoffInitial == 0 {
		c.Supervisor.BackoffInitial = time.Second
	}
	if c.Supervisor.BackoffMax == 0 {
		c.Supervisor.BackoffMax = 60 * time.Second
	}
	if c.Supervisor.StopGraceful == 0 {
		c.Supervisor.StopGraceful = 5 * time.Second
	}
	if c.Watchdog.CheckInterval == 0 {
		c.Watchdog.CheckInterval = 10 * time.Second
	}
	if c.Watchdog.UnhealthyThreshold == 0 {
		c.Watchdog.UnhealthyThreshold = 3
	}
	if c.Watchdog.RecoveryThreshold == 0 {
		c.Watchdog.RecoveryThreshold = 2
	}
	if c.Watchdog.RestartCooldown == 0 {
		c.Watchdog.RestartCooldown = 30 * time.Second
	}
	if c.Watchdog.RemoteProbeRatePerSec == 0 {
		c.Watchdog.RemoteProbeRatePerSec = 0.2
	}
	if c.Relay.HealthyAfterProbes == 0 {
		c.Relay.HealthyAfterProbes = 2
	}
	if c.Relay.CuePrepareTimeout == 0 {
		c.Relay.CuePrepareTimeout = 3 * time.Second
	}
	if c.PTZ.RequestTimeout == 0 {
		c.PTZ.RequestTimeout = 5 * time.Second
	}
	if c.PTZ.SettleTime == 0 {
		c.PTZ.SettleTime = 2 * time.Second
	}
	if c.Preview.PublishURL == "" {
		c.Preview.PublishURL = "rtmp://127.0.0.1/preview/live"
	}
	if c.Preview.PlaybackURL == "" {
		c.Preview.PlaybackURL = "http://127.0.0.1:8888/preview/index.m3u8"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate fails fast on configuration that would leave a component unable
// to start, matching the teacher's validateFinalConfiguration philosophy.
func Validate(c *Config) error {
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("supervisor.max_restarts must be >= 0")
	}
	if c.Supervisor.BackoffMax < c.Supervisor.BackoffInitial {
		return fmt.Errorf("supervisor.backoff_max must be >= backoff_initial")
	}
	if c.Watchdog.UnhealthyThreshold <= 0 {
		return fmt.Errorf("watchdog.unhealthy_threshold must be > 0")
	}
	if c.Watchdog.RecoveryThreshold <= 0 {
		return fmt.Errorf("watchdog.recovery_threshold must be > 0")
	}
	if c.RTMPRelayHost != "" && strings.TrimSpace(c.RTMPRelayHost) == "" {
		return fmt.Errorf("rtmp_relay_host must not be blank")
	}
	if c.RTMPRelayPort < 0 || c.RTMPRelayPort > 65535 {
		return fmt.Errorf("rtmp_relay_port out of range: %d", c.RTMPRelayPort)
	}
	return nil
}
