package config

import (
	"fmt"
	"time"

	"github.com/vango-dev/viewbridge/internal/errors"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return errors.New("E121").
			WithDetail("socket must be set")
	}

	durations := []struct {
		field, value string
	}{
		{"client.dialTimeout", c.Client.DialTimeout},
		{"client.ioTimeout", c.Client.IOTimeout},
		{"client.idleTimeout", c.Client.IdleTimeout},
		{"service.shutdownTimeout", c.Service.ShutdownTimeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			return errors.New("E122").
				WithDetail(fmt.Sprintf("%s: %v", d.field, err)).
				WithSuggestion(`Use a duration such as "500ms" or "30s"`)
		}
	}

	if c.Client.MaxAttempts < 1 {
		return errors.New("E122").
			WithDetail("client.maxAttempts must be at least 1")
	}
	if c.Service.Concurrency < 0 {
		return errors.New("E122").
			WithDetail("service.concurrency must not be negative")
	}
	if c.Service.MaxBodyBytes < 0 {
		return errors.New("E122").
			WithDetail("service.maxBodyBytes must not be negative")
	}
	if err := protocol.ValidateIdentifier("layout", c.Service.Layout); err != nil {
		return errors.New("E122").
			WithDetail("service.layout: " + err.Error()).
			Wrap(err)
	}

	switch c.Artifacts.Source {
	case SourceFS:
	case SourceS3:
		if c.Artifacts.Bucket == "" {
			return errors.New("E121").
				WithDetail("artifacts.bucket must be set when artifacts.source is \"s3\"")
		}
	default:
		return errors.New("E122").
			WithDetail(fmt.Sprintf("artifacts.source %q is not one of %q, %q", c.Artifacts.Source, SourceFS, SourceS3))
	}
	return nil
}

// parseDuration parses a duration field. Empty means zero; negative
// values are rejected.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// duration returns the parsed field, or zero if it does not parse. Callers
// run Validate first.
func duration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}
