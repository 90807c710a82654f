package observability

import (
	"strings"

	"github.com/smallbiznis/eksporyuk/internal/config"
)

const defaultServiceName = "eksporyuk"

// Config is the observability view of config.Config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	// OtelSamplingRatio applies to non-webhook requests. Provider callbacks
	// are always sampled (see tracing.NewSampler).
	OtelSamplingRatio float64
}

// LoadConfig derives logger and OTel settings from the service config.
// Outside production every request is sampled.
func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	level := strings.ToLower(strings.TrimSpace(obs.LogLevel))
	if level == "" {
		level = "info"
	}
	format := strings.ToLower(strings.TrimSpace(obs.LogFormat))
	if format == "" {
		format = "json"
	}
	protocol := strings.ToLower(strings.TrimSpace(obs.OtelProtocol))
	if protocol == "" {
		protocol = "grpc"
	}

	ratio := obs.SamplingRatio
	if ratio <= 0 || ratio > 1 || !cfg.IsProduction() {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          obs.OtelEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on verbose request logs, stack traces and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
