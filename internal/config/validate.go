package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationError names the offending key by its dotted config path.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, "configuration validation failed:")
	for _, err := range e {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n") + "\n"
}

// fieldCheck binds a config value to the rules it must pass.
type fieldCheck struct {
	field string
	value any
	rules []validation.Rule
}

var (
	nonNegative = validation.Min(0).Error("must be non-negative")
	logLevels   = []any{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
)

// Validate checks every section and reports all failures at once.
func Validate(cfg *Config) error {
	var errs ValidationErrors
	for _, c := range checks(cfg) {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			errs = append(errs, ValidationError{Field: c.field, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checks(cfg *Config) []fieldCheck {
	var (
		llm = cfg.Content.Provider == "gemini" || cfg.Content.Provider == "openai"
		fs  = cfg.Storage.Type == "filesystem"
		s3  = cfg.Storage.Type == "s3"
	)

	return []fieldCheck{
		{"server.port", cfg.Server.Port, []validation.Rule{
			validation.Required.Error("must be between 1 and 65535"),
			validation.Min(1).Error("must be between 1 and 65535"),
			validation.Max(65535).Error("must be between 1 and 65535"),
		}},
		{"server.read_timeout", cfg.Server.ReadTimeout, []validation.Rule{nonNegative}},
		{"server.write_timeout", cfg.Server.WriteTimeout, []validation.Rule{nonNegative}},
		{"server.max_body_size", cfg.Server.MaxBodySize, []validation.Rule{nonNegative}},

		{"database.path", cfg.Database.Path, []validation.Rule{validation.Required}},
		{"database.max_open_conns", cfg.Database.MaxOpenConns, []validation.Rule{nonNegative}},

		{"logging.level", cfg.Logging.Level, []validation.Rule{
			validation.Required,
			validation.In(logLevels...).Error("must be one of: trace, debug, info, warn, error, fatal, panic"),
		}},
		{"logging.format", cfg.Logging.Format, []validation.Rule{
			validation.Required,
			validation.In("json", "console").Error("must be 'json' or 'console'"),
		}},

		{"scheduler.timezone", cfg.Scheduler.Timezone, []validation.Rule{validation.By(loadableZone)}},
		{"scheduler.shutdown_timeout", cfg.Scheduler.ShutdownTimeout, []validation.Rule{nonNegative}},

		{"pipeline.max_parallel", cfg.Pipeline.MaxParallel, []validation.Rule{
			validation.Required.Error("must be at least 1"),
			validation.Min(1).Error("must be at least 1"),
		}},
		{"pipeline.cycle_timeout", cfg.Pipeline.CycleTimeout, []validation.Rule{nonNegative}},
		{"publisher.timeout", cfg.Publisher.Timeout, []validation.Rule{
			validation.Required.Error("must be positive"),
			validation.Min(1).Error("must be positive"),
		}},

		{"sessions.root", cfg.Sessions.Root, []validation.Rule{validation.Required}},

		{"content.provider", cfg.Content.Provider, []validation.Rule{
			validation.In("gemini", "openai", "none").Error("must be one of: gemini, openai, none"),
		}},
		{"content.api_key", cfg.Content.APIKey, []validation.Rule{
			validation.When(llm, validation.Required.Error(fmt.Sprintf("required when provider is '%s'", cfg.Content.Provider))),
		}},
		{"content.rate_per_minute", cfg.Content.RatePerMinute, []validation.Rule{nonNegative}},

		{"storage.type", cfg.Storage.Type, []validation.Rule{
			validation.Required.Error("must be 'filesystem' or 's3'"),
			validation.In("filesystem", "s3").Error("must be 'filesystem' or 's3'"),
		}},
		{"storage.path", cfg.Storage.Path, []validation.Rule{
			validation.When(fs, validation.Required.Error("required when type is 'filesystem'"), validation.By(noTraversal)),
		}},
		{"storage.s3.region", cfg.Storage.S3.Region, []validation.Rule{validation.When(s3, validation.Required)}},
		{"storage.s3.access_key_id", cfg.Storage.S3.AccessKeyID, []validation.Rule{validation.When(s3, validation.Required)}},
		{"storage.s3.secret_access_key", cfg.Storage.S3.SecretAccessKey, []validation.Rule{validation.When(s3, validation.Required)}},
		{"storage.s3.bucket_prefix", cfg.Storage.S3.BucketPrefix, []validation.Rule{
			validation.When(s3, validation.By(func(v any) error {
				if strings.Contains(v.(string), "/") {
					return errors.New("must not contain path separators")
				}
				return nil
			})),
		}},
	}
}

func loadableZone(v any) error {
	name, _ := v.(string)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone %q", name)
	}
	return nil
}

func noTraversal(v any) error {
	if strings.Contains(v.(string), "..") {
		return errors.New("path traversal (..) not allowed")
	}
	return nil
}
