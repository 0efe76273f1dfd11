package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Tokenize  TokenizeConfig  `mapstructure:"tokenize"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Hub       HubConfig       `mapstructure:"hub"`
	LogLevel  string          `mapstructure:"log_level"`
}

type PathsConfig struct {
	AssetsDir string `mapstructure:"assets_dir"`
	CacheDir  string `mapstructure:"cache_dir"`
}

type TokenizeConfig struct {
	TargetModel  string `mapstructure:"target_model"`
	ImageColumn  string `mapstructure:"image_column"`
	LabelColumn  string `mapstructure:"label_column"`
	WordsColumn  string `mapstructure:"words_column"`
	BoxesColumn  string `mapstructure:"boxes_column"`
	Batched      bool   `mapstructure:"batched"`
	BatchSize    int    `mapstructure:"batch_size"`
	NumWorkers   int    `mapstructure:"num_workers"`
	KeepInMemory bool   `mapstructure:"keep_in_memory"`
	Compression  string `mapstructure:"compression"`
}

// ProcessorConfig is passed to the encoder as its processor config map.
type ProcessorConfig struct {
	Model      string `mapstructure:"model"`
	Padding    string `mapstructure:"padding"`
	Truncation bool   `mapstructure:"truncation"`
	MaxLength  int    `mapstructure:"max_length"`
	ImageSize  int    `mapstructure:"image_size"`
}

type HubConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
	Revision string `mapstructure:"revision"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// flagKeys maps config keys to their flag names.
var flagKeys = map[string]string{
	"paths.assets_dir":        "assets-dir",
	"paths.cache_dir":         "cache-dir",
	"tokenize.target_model":   "target-model",
	"tokenize.image_column":   "image-column",
	"tokenize.label_column":   "label-column",
	"tokenize.words_column":   "words-column",
	"tokenize.boxes_column":   "boxes-column",
	"tokenize.batched":        "batched",
	"tokenize.batch_size":     "batch-size",
	"tokenize.num_workers":    "workers",
	"tokenize.keep_in_memory": "keep-in-memory",
	"tokenize.compression":    "compression",
	"processor.model":         "processor-model",
	"processor.padding":       "padding",
	"processor.truncation":    "truncation",
	"processor.max_length":    "max-length",
	"processor.image_size":    "image-size",
	"hub.endpoint":            "hub-endpoint",
	"hub.token":               "hf-token",
	"hub.revision":            "revision",
	"log_level":               "log-level",
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			AssetsDir: "assets",
			CacheDir:  "",
		},
		Tokenize: TokenizeConfig{
			TargetModel:  "",
			ImageColumn:  "image",
			LabelColumn:  "label",
			WordsColumn:  "words",
			BoxesColumn:  "boxes",
			Batched:      true,
			BatchSize:    2,
			NumWorkers:   1,
			KeepInMemory: false,
			Compression:  "none",
		},
		Processor: ProcessorConfig{
			Model:      "",
			Padding:    "max_length",
			Truncation: true,
			MaxLength:  512,
			ImageSize:  224,
		},
		Hub: HubConfig{
			Endpoint: "https://huggingface.co",
			Token:    "",
			Revision: "main",
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("assets-dir", defaults.Paths.AssetsDir, "Root directory of processor assets (<dir>/<model>/...)")
	fs.String("cache-dir", defaults.Paths.CacheDir, "Directory for per-split map cache files (empty disables caching)")
	fs.String("target-model", defaults.Tokenize.TargetModel, "Target model: layoutlmv2|layoutlmv3|layoutxlm")
	fs.String("image-column", defaults.Tokenize.ImageColumn, "Name of the image column")
	fs.String("label-column", defaults.Tokenize.LabelColumn, "Name of the label column")
	fs.String("words-column", defaults.Tokenize.WordsColumn, "Name of the column of pre-extracted OCR words")
	fs.String("boxes-column", defaults.Tokenize.BoxesColumn, "Name of the column of word boxes (0..1000)")
	fs.Bool("batched", defaults.Tokenize.Batched, "Encode records in batches")
	fs.Int("batch-size", defaults.Tokenize.BatchSize, "Records per batch when batched")
	fs.Int("workers", defaults.Tokenize.NumWorkers, "Concurrent batches per split")
	fs.Bool("keep-in-memory", defaults.Tokenize.KeepInMemory, "Skip cache files even when a cache dir is set")
	fs.String("compression", defaults.Tokenize.Compression, "Compression for saved and cached splits: none|zstd|lz4")
	fs.String("processor-model", defaults.Processor.Model, "Hub model whose processor assets to use (default per target)")
	fs.String("padding", defaults.Processor.Padding, "Padding strategy: max_length|longest|do_not_pad")
	fs.Bool("truncation", defaults.Processor.Truncation, "Truncate token sequences to max length")
	fs.Int("max-length", defaults.Processor.MaxLength, "Token sequence length")
	fs.Int("image-size", defaults.Processor.ImageSize, "Square image size in pixels")
	fs.String("hub-endpoint", defaults.Hub.Endpoint, "Hugging Face hub endpoint")
	fs.String("hf-token", defaults.Hub.Token, "Hugging Face access token")
	fs.String("revision", defaults.Hub.Revision, "Hub revision to download from")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("DOCTOOLS")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)

	if err := v.BindEnv("hub.token", "DOCTOOLS_HUB_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind token env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("doctools")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	compression, err := NormalizeCompression(cfg.Tokenize.Compression)
	if err != nil {
		return Config{}, err
	}
	cfg.Tokenize.Compression = compression

	return cfg, nil
}

// ProcessorMap renders the processor section as the raw config map encoders
// merge over their defaults. An empty model keeps the target's default.
func (c Config) ProcessorMap() map[string]any {
	m := map[string]any{
		"padding":    c.Processor.Padding,
		"truncation": c.Processor.Truncation,
		"max_length": c.Processor.MaxLength,
		"image_size": c.Processor.ImageSize,
		"assets_dir": c.Paths.AssetsDir,
	}

	if c.Processor.Model != "" {
		m["default_model"] = c.Processor.Model
	}

	return m
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.assets_dir", c.Paths.AssetsDir)
	v.SetDefault("paths.cache_dir", c.Paths.CacheDir)
	v.SetDefault("tokenize.target_model", c.Tokenize.TargetModel)
	v.SetDefault("tokenize.image_column", c.Tokenize.ImageColumn)
	v.SetDefault("tokenize.label_column", c.Tokenize.LabelColumn)
	v.SetDefault("tokenize.words_column", c.Tokenize.WordsColumn)
	v.SetDefault("tokenize.boxes_column", c.Tokenize.BoxesColumn)
	v.SetDefault("tokenize.batched", c.Tokenize.Batched)
	v.SetDefault("tokenize.batch_size", c.Tokenize.BatchSize)
	v.SetDefault("tokenize.num_workers", c.Tokenize.NumWorkers)
	v.SetDefault("tokenize.keep_in_memory", c.Tokenize.KeepInMemory)
	v.SetDefault("tokenize.compression", c.Tokenize.Compression)
	v.SetDefault("processor.model", c.Processor.Model)
	v.SetDefault("processor.padding", c.Processor.Padding)
	v.SetDefault("processor.truncation", c.Processor.Truncation)
	v.SetDefault("processor.max_length", c.Processor.MaxLength)
	v.SetDefault("processor.image_size", c.Processor.ImageSize)
	v.SetDefault("hub.endpoint", c.Hub.Endpoint)
	v.SetDefault("hub.token", c.Hub.Token)
	v.SetDefault("hub.revision", c.Hub.Revision)
	v.SetDefault("log_level", c.LogLevel)
}
