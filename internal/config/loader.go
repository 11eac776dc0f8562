package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigExists   = errors.New("config file already exists")
)

const (
	defaultEnvPrefix  = "CLIPCAST"
	defaultConfigName = "clipcast"
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config

	// Viper, when set, is used instead of a fresh instance so callers can watch the file.
	Viper *viper.Viper
}

func Load(opts LoadOptions) (*Config, error) {
	v := opts.Viper
	if v == nil {
		v = viper.New()
	}

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = defaultEnvPrefix
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return Decode(v)
}

// Decode unmarshals and validates the current state of v.
func Decode(v *viper.Viper) (*Config, error) {
	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// setViperDefaults registers every leaf of cfg under its dotted mapstructure
// key. AutomaticEnv only resolves keys viper already knows about.
func setViperDefaults(v *viper.Viper, cfg *Config) {
	walkKeys("", reflect.ValueOf(cfg).Elem(), v.SetDefault)
}

func walkKeys(prefix string, rv reflect.Value, set func(key string, value any)) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if fv := rv.Field(i); fv.Kind() == reflect.Struct {
			walkKeys(name, fv, set)
		} else {
			set(name, fv.Interface())
		}
	}
}

// expandEnvInConfig replaces values written as ${NAME} with that variable,
// leaving them untouched when it is unset.
func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		raw := v.GetString(key)
		name, ok := strings.CutPrefix(raw, "${")
		if !ok {
			continue
		}
		if name, ok = strings.CutSuffix(name, "}"); !ok {
			continue
		}
		if val, set := os.LookupEnv(name); set && val != "" {
			v.Set(key, val)
		}
	}
}

// searchDirs lists where an unnamed config file is looked for, in order.
func searchDirs() []string {
	return []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "clipcast"),
		"/etc/clipcast",
	}
}

// ConfigFilePath resolves the file Load would read. An explicit path must exist.
func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		abs, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, abs)
		}
		return abs, nil
	}

	for _, dir := range searchDirs() {
		for _, ext := range []string{".yaml", ".yml"} {
			candidate := filepath.Join(dir, defaultConfigName+ext)
			if _, err := os.Stat(candidate); err == nil {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", ErrConfigNotFound
}

// WriteFile writes cfg as YAML to path. An existing file is only replaced when overwrite is set.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
