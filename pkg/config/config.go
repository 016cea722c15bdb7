package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Session struct {
		HeartbeatIntervalMS        int `yaml:"heartbeat_interval_ms"`
		HeartbeatTimeoutMultiplier int `yaml:"heartbeat_timeout_multiplier"`
		SignalingReplyTimeoutMS    int `yaml:"signaling_reply_timeout_ms"`
	} `yaml:"session"`

	Crypto struct {
		Suite                string `yaml:"suite"` // aes128_gcm or aes256_gcm
		KeyRotationPackets   uint64 `yaml:"key_rotation_packets"`
		KeyRotationIntervalS int    `yaml:"key_rotation_interval_s"`
		ReplayWindowSize     uint   `yaml:"replay_window_size"`
	} `yaml:"crypto"`

	Jitter struct {
		MinDepthMS      int `yaml:"min_depth_ms"`
		MaxDepthMS      int `yaml:"max_depth_ms"`
		InitialDepthMS  int `yaml:"initial_depth_ms"`
		AdaptIntervalMS int `yaml:"adapt_interval_ms"`
	} `yaml:"jitter"`

	PLC struct {
		Enabled           bool `yaml:"enabled"`
		MaxConcealPackets int  `yaml:"max_conceal_packets"`
		AudioFadeFrames   int  `yaml:"audio_fade_out_frames"`
	} `yaml:"plc"`

	Adapt struct {
		LossStepDown  float64 `yaml:"loss_step_down"`
		RTTStepDownMS int     `yaml:"rtt_step_down_ms"`
		LossStepUp    float64 `yaml:"loss_step_up"`
		RTTStepUpMS   int     `yaml:"rtt_step_up_ms"`
		MinDwellMS    int     `yaml:"min_dwell_ms"`
		EmergencyLoss float64 `yaml:"emergency_loss"`
	} `yaml:"adapt"`

	Transport struct {
		ListenAddress string `yaml:"listen_address"`
		WriteQueue    int    `yaml:"write_queue"`
		InboundQueue  int    `yaml:"inbound_queue"`
	} `yaml:"transport"`

	Signal struct {
		Address        string `yaml:"address"`
		WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	} `yaml:"signal"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		CollectIntervalMS int  `yaml:"collect_interval_ms"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Duration accessors for the millisecond-keyed options.

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Session.HeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) SignalingReplyTimeout() time.Duration {
	return time.Duration(c.Session.SignalingReplyTimeoutMS) * time.Millisecond
}

func (c *Config) KeyRotationInterval() time.Duration {
	return time.Duration(c.Crypto.KeyRotationIntervalS) * time.Second
}

func (c *Config) JitterMinDepth() time.Duration {
	return time.Duration(c.Jitter.MinDepthMS) * time.Millisecond
}

func (c *Config) JitterMaxDepth() time.Duration {
	return time.Duration(c.Jitter.MaxDepthMS) * time.Millisecond
}

func (c *Config) JitterInitialDepth() time.Duration {
	return time.Duration(c.Jitter.InitialDepthMS) * time.Millisecond
}

func (c *Config) JitterAdaptInterval() time.Duration {
	return time.Duration(c.Jitter.AdaptIntervalMS) * time.Millisecond
}

func (c *Config) AdaptMinDwell() time.Duration {
	return time.Duration(c.Adapt.MinDwellMS) * time.Millisecond
}

func (c *Config) SignalWriteTimeout() time.Duration {
	return time.Duration(c.Signal.WriteTimeoutMS) * time.Millisecond
}

func (c *Config) CollectInterval() time.Duration {
	return time.Duration(c.Monitoring.CollectIntervalMS) * time.Millisecond
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Session
	if c.Session.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("session.heartbeat_interval_ms must be > 0")
	}
	if c.Session.HeartbeatTimeoutMultiplier < 1 {
		return fmt.Errorf("session.heartbeat_timeout_multiplier must be >= 1")
	}
	if c.Session.SignalingReplyTimeoutMS <= 0 {
		return fmt.Errorf("session.signaling_reply_timeout_ms must be > 0")
	}

	// Crypto
	if c.Crypto.Suite != "aes128_gcm" && c.Crypto.Suite != "aes256_gcm" {
		return fmt.Errorf("crypto.suite must be aes128_gcm or aes256_gcm")
	}
	if c.Crypto.KeyRotationPackets == 0 {
		return fmt.Errorf("crypto.key_rotation_packets must be > 0")
	}
	if c.Crypto.KeyRotationIntervalS <= 0 {
		return fmt.Errorf("crypto.key_rotation_interval_s must be > 0")
	}
	if c.Crypto.ReplayWindowSize == 0 {
		return fmt.Errorf("crypto.replay_window_size must be > 0")
	}

	// Jitter
	if c.Jitter.MinDepthMS <= 0 {
		return fmt.Errorf("jitter.min_depth_ms must be > 0")
	}
	if c.Jitter.MaxDepthMS < c.Jitter.MinDepthMS {
		return fmt.Errorf("jitter.max_depth_ms must be >= min_depth_ms")
	}
	if c.Jitter.InitialDepthMS < c.Jitter.MinDepthMS || c.Jitter.InitialDepthMS > c.Jitter.MaxDepthMS {
		return fmt.Errorf("jitter.initial_depth_ms must be within [min_depth_ms, max_depth_ms]")
	}
	if c.Jitter.AdaptIntervalMS <= 0 {
		return fmt.Errorf("jitter.adapt_interval_ms must be > 0")
	}

	// PLC
	if c.PLC.MaxConcealPackets < 0 {
		return fmt.Errorf("plc.max_conceal_packets must be >= 0")
	}
	if c.PLC.AudioFadeFrames < 0 {
		return fmt.Errorf("plc.audio_fade_out_frames must be >= 0")
	}

	// Adapt
	if c.Adapt.LossStepDown <= 0 || c.Adapt.LossStepDown > 1 {
		return fmt.Errorf("adapt.loss_step_down must be in (0, 1]")
	}
	if c.Adapt.LossStepUp < 0 || c.Adapt.LossStepUp >= c.Adapt.LossStepDown {
		return fmt.Errorf("adapt.loss_step_up must be in [0, loss_step_down)")
	}
	if c.Adapt.RTTStepDownMS <= 0 {
		return fmt.Errorf("adapt.rtt_step_down_ms must be > 0")
	}
	if c.Adapt.RTTStepUpMS <= 0 || c.Adapt.RTTStepUpMS > c.Adapt.RTTStepDownMS {
		return fmt.Errorf("adapt.rtt_step_up_ms must be in (0, rtt_step_down_ms]")
	}
	if c.Adapt.MinDwellMS <= 0 {
		return fmt.Errorf("adapt.min_dwell_ms must be > 0")
	}
	if c.Adapt.EmergencyLoss <= c.Adapt.LossStepDown || c.Adapt.EmergencyLoss > 1 {
		return fmt.Errorf("adapt.emergency_loss must be in (loss_step_down, 1]")
	}

	// Transport
	if c.Transport.ListenAddress == "" {
		return fmt.Errorf("transport.listen_address must not be empty")
	}
	if c.Transport.WriteQueue <= 0 {
		return fmt.Errorf("transport.write_queue must be > 0")
	}
	if c.Transport.InboundQueue <= 0 {
		return fmt.Errorf("transport.inbound_queue must be > 0")
	}

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.WriteTimeoutMS <= 0 {
		return fmt.Errorf("signal.write_timeout_ms must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Monitoring.CollectIntervalMS <= 0 {
		return fmt.Errorf("monitoring.collect_interval_ms must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Session.HeartbeatIntervalMS = 5000
	cfg.Session.HeartbeatTimeoutMultiplier = 3
	cfg.Session.SignalingReplyTimeoutMS = 3000

	cfg.Crypto.Suite = "aes128_gcm"
	cfg.Crypto.KeyRotationPackets = 1 << 31
	cfg.Crypto.KeyRotationIntervalS = 86400
	cfg.Crypto.ReplayWindowSize = 64

	cfg.Jitter.MinDepthMS = 5
	cfg.Jitter.MaxDepthMS = 50
	cfg.Jitter.InitialDepthMS = 10
	cfg.Jitter.AdaptIntervalMS = 500

	cfg.PLC.Enabled = true
	cfg.PLC.MaxConcealPackets = 5
	cfg.PLC.AudioFadeFrames = 3

	cfg.Adapt.LossStepDown = 0.05
	cfg.Adapt.RTTStepDownMS = 100
	cfg.Adapt.LossStepUp = 0.01
	cfg.Adapt.RTTStepUpMS = 50
	cfg.Adapt.MinDwellMS = 2000
	cfg.Adapt.EmergencyLoss = 0.20

	cfg.Transport.ListenAddress = ":5004"
	cfg.Transport.WriteQueue = 64
	cfg.Transport.InboundQueue = 256

	cfg.Signal.Address = ":8081"
	cfg.Signal.WriteTimeoutMS = 10000

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.CollectIntervalMS = 5000

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("ARCRTC_TRANSPORT_ADDRESS"); addr != "" {
		c.Transport.ListenAddress = addr
	}
	if addr := os.Getenv("ARCRTC_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("ARCRTC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if suite := os.Getenv("ARCRTC_CRYPTO_SUITE"); suite != "" {
		c.Crypto.Suite = suite
	}
	if port := os.Getenv("ARCRTC_PROMETHEUS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Monitoring.PrometheusPort = p
		}
	}
}
