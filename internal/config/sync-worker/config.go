package sync_worker_config

import (
	"time"

	"bizwatch/internal/obs"
	bizinfo "bizwatch/internal/repository/bizinfo"
	pginfra "bizwatch/internal/repository/postgres"
)

type KafkaOut struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type SyncCfg struct {
	Interval        time.Duration `mapstructure:"interval"`
	DispatchWorkers int           `mapstructure:"dispatch_workers"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	FetchAttempts   int           `mapstructure:"fetch_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	RateLimitFloor  time.Duration `mapstructure:"rate_limit_floor"`
}

type OutboxCfg struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	Wait          time.Duration `mapstructure:"wait"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Env    string `mapstructure:"env"`
	Ver    string `mapstructure:"ver"`
}

func (l Log) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  l.Level,
		Pretty: l.Pretty,
		App:    "sync-worker",
		Env:    l.Env,
		Ver:    l.Ver,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
}

func (o OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      o.Enable,
		Endpoint:    o.OTLPEndpoint,
		ServiceName: o.ServiceName,
		SampleRatio: o.SampleRatio,
	}
}

type Config struct {
	DB       pginfra.Config `mapstructure:"db"`
	Bizinfo  bizinfo.Config `mapstructure:"bizinfo"`
	KafkaOut KafkaOut       `mapstructure:"kafka_out"`
	SMTP     SMTP           `mapstructure:"smtp"`
	Sync     SyncCfg        `mapstructure:"sync"`
	Outbox   OutboxCfg      `mapstructure:"outbox"`
	Log      Log            `mapstructure:"log"`
	OTEL     OTEL           `mapstructure:"otel"`
}
