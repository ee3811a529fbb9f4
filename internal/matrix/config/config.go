package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// AppConfig is the full daemon configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log       LoggingConfig   `koanf:"log" validate:"required"`
	Matrix    MatrixConfig    `koanf:"matrix" validate:"required"`
	Pages     PagesConfig     `koanf:"pages" validate:"required"`
	Decisions DecisionsConfig `koanf:"decisions"`
	Server    ServerConfig    `koanf:"server" validate:"required"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type MatrixConfig struct {
	// ScopeLevel is the initial scope level: "global", "domain" or "site".
	ScopeLevel string `koanf:"scope_level" validate:"required,oneof=global domain site"`

	// DB is the bbolt file holding the permanent layer.
	DB string `koanf:"db" validate:"required"`

	// RulesFile seeds the permanent layer when the store is empty.
	RulesFile string `koanf:"rules_file"`

	// GlobalSwitch is the filtering state when no switch rule applies.
	GlobalSwitch bool `koanf:"global_switch"`

	// Defaults override the builtin column defaults, as type=hue pairs.
	Defaults []string `koanf:"defaults" validate:"dive,type_hue"`

	// BloomFPRate enables the hostname prefilter when above zero.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gte=0,lt=1"`
}

type PagesConfig struct {
	// Capacity bounds the number of pages with a request log.
	Capacity int `koanf:"capacity" validate:"required,gte=1"`
}

type DecisionsConfig struct {
	// CacheSize bounds the decision cache; zero disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`
}

type ServerConfig struct {
	// Listen is the control API address in host:port form.
	Listen string `koanf:"listen" validate:"required,listen_addr"`
}

// DEFAULT_APP_CONFIG holds the defaults every other source overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{Level: "info"},
	Matrix: MatrixConfig{
		ScopeLevel:   "global",
		DB:           "/var/lib/rr-matrix/matrix.db",
		RulesFile:    "",
		GlobalSwitch: true,
		Defaults:     []string{},
		BloomFPRate:  0.01,
	},
	Pages:     PagesConfig{Capacity: 256},
	Decisions: DecisionsConfig{CacheSize: 4096},
	Server:    ServerConfig{Listen: "127.0.0.1:8080"},
}

// envKeyMap maps MATRIX_ variables onto config keys.
var envKeyMap = map[string]string{
	"MATRIX_ENV":                  "env",
	"MATRIX_LOG_LEVEL":            "log.level",
	"MATRIX_SCOPE_LEVEL":          "matrix.scope_level",
	"MATRIX_DB":                   "matrix.db",
	"MATRIX_RULES_FILE":           "matrix.rules_file",
	"MATRIX_GLOBAL_SWITCH":        "matrix.global_switch",
	"MATRIX_DEFAULTS":             "matrix.defaults",
	"MATRIX_BLOOM_FP_RATE":        "matrix.bloom_fp_rate",
	"MATRIX_PAGES_CAPACITY":       "pages.capacity",
	"MATRIX_DECISIONS_CACHE_SIZE": "decisions.cache_size",
	"MATRIX_LISTEN":               "server.listen",
}

// listKeys are split on spaces and commas.
var listKeys = map[string]bool{
	"matrix.defaults": true,
}

// validTypeHue accepts a "type=hue" column default.
func validTypeHue(fl validator.FieldLevel) bool {
	t, h, ok := strings.Cut(fl.Field().String(), "=")
	if !ok {
		return false
	}
	if _, err := domain.ParseRequestType(t); err != nil {
		return false
	}
	_, err := domain.ParseHue(h)
	return err == nil
}

// validListenAddr accepts host:port with an optional host.
func validListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && !domain.ValidHostname(host) {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads MATRIX_ variables through envKeyMap. Unknown variables are
// ignored. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "MATRIX_",
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeyMap[key]
			if !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)
			if listKeys[mapped] {
				return mapped, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return mapped, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads path with the parser matching its extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("type_hue", validTypeHue); err != nil {
		return err
	}
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load layers defaults, the optional config file at path, and the
// environment, then validates the result.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}
