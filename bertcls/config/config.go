package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/bertcls/bertcls"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables or CLI flags.
type Config struct {
	Train    TrainConfig   `mapstructure:"train"`
	Model    ModelConfig   `mapstructure:"model"`
	Encoder  EncoderConfig `mapstructure:"encoder"`
	History  HistoryConfig `mapstructure:"history"`
	LogLevel string        `mapstructure:"logLevel"`
}

// TrainConfig stores the training loop settings.
type TrainConfig struct {
	Epochs              int      `mapstructure:"epochs"`
	OutPath             string   `mapstructure:"out"`
	CorpusPath          string   `mapstructure:"corpus"`
	LabelsPath          string   `mapstructure:"labels"`
	BatchSize           int      `mapstructure:"batchSize"`
	LearningRate        float64  `mapstructure:"learningRate"`
	WeightDecay         float64  `mapstructure:"weightDecay"`
	EvalInterval        int      `mapstructure:"evalInterval"`
	Seed                uint64   `mapstructure:"seed"`
	Workers             int      `mapstructure:"workers"`
	Resume              bool     `mapstructure:"resume"`
	DiagnosticSentences []string `mapstructure:"diagnosticSentences"`
}

// ModelConfig stores the pre-trained model and tokenizer settings.
type ModelConfig struct {
	Name       string `mapstructure:"name"`
	VocabPath  string `mapstructure:"vocab"`
	BasePath   string `mapstructure:"base"`
	Tokenizer  string `mapstructure:"tokenizer"`
	HiddenSize int    `mapstructure:"hiddenSize"`
	MaxSeqLen  int    `mapstructure:"maxSeqLen"`
}

// EncoderConfig selects the encoder provider and its execution device.
type EncoderConfig struct {
	Provider          string `mapstructure:"provider"`
	ExecutionProvider string `mapstructure:"executionProvider"`
	DeviceID          int    `mapstructure:"deviceID"`
	BatchSize         int    `mapstructure:"batchSize"`
}

// HistoryConfig stores run history database details.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"epoch":     "train.epochs",
	"out":       "train.out",
	"train":     "train.corpus",
	"name":      "train.labels",
	"resume":    "train.resume",
	"log-level": "logLevel",
}

// LoadConfig reads configuration from file, environment variables and the
// given flag set. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // e.g. BERTCLS_TRAIN_EPOCHS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // train.batchSize becomes BERTCLS_TRAIN_BATCHSIZE

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("train.epochs", internal.DefaultEpochs)
	v.SetDefault("train.out", internal.DefaultOutPath)
	v.SetDefault("train.corpus", internal.DefaultCorpusPath)
	v.SetDefault("train.labels", internal.DefaultLabelsPath)
	v.SetDefault("train.batchSize", internal.DefaultBatchSize)
	v.SetDefault("train.learningRate", internal.DefaultLearningRate)
	v.SetDefault("train.weightDecay", internal.DefaultWeightDecay)
	v.SetDefault("train.evalInterval", internal.DefaultEvalInterval)
	v.SetDefault("train.seed", internal.DefaultSeed)
	v.SetDefault("train.workers", internal.DefaultLoaderWorkers)
	v.SetDefault("train.resume", true)
	v.SetDefault("train.diagnosticSentences", internal.DefaultDiagnosticSentences)

	v.SetDefault("model.name", internal.DefaultModelName)
	v.SetDefault("model.vocab", internal.DefaultVocabPath)
	v.SetDefault("model.base", internal.DefaultBaseModelPath)
	v.SetDefault("model.tokenizer", internal.DefaultTokenizer)
	v.SetDefault("model.hiddenSize", internal.DefaultHiddenSize)
	v.SetDefault("model.maxSeqLen", internal.DefaultMaxSeqLen)

	v.SetDefault("encoder.provider", internal.DefaultEncoderProvider)
	v.SetDefault("encoder.executionProvider", internal.DefaultExecutionProvider)
	v.SetDefault("encoder.deviceID", 0)
	v.SetDefault("encoder.batchSize", internal.DefaultEncoderBatchSize)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", internal.DefaultHistoryDSN)

	v.SetDefault("logLevel", internal.DefaultLogLevel)
}

// Validate rejects settings the trainer cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Train.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("train.epochs must be positive: %d", c.Train.Epochs))
	}
	if c.Train.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("train.batchSize must be positive: %d", c.Train.BatchSize))
	}
	if c.Train.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("train.learningRate must be positive: %g", c.Train.LearningRate))
	}
	if c.Train.WeightDecay < 0 {
		errs = append(errs, fmt.Errorf("train.weightDecay must not be negative: %g", c.Train.WeightDecay))
	}
	if c.Train.EvalInterval <= 0 {
		errs = append(errs, fmt.Errorf("train.evalInterval must be positive: %d", c.Train.EvalInterval))
	}
	if c.Train.OutPath == "" {
		errs = append(errs, errors.New("train.out is required"))
	}
	if c.Train.CorpusPath == "" {
		errs = append(errs, errors.New("train.corpus is required"))
	}
	if c.Train.LabelsPath == "" {
		errs = append(errs, errors.New("train.labels is required"))
	}
	if c.Model.HiddenSize <= 0 || c.Model.HiddenSize > 65536 {
		errs = append(errs, fmt.Errorf("model.hiddenSize must be between 1 and 65536 inclusive: %d", c.Model.HiddenSize))
	}
	if c.Model.MaxSeqLen < 3 {
		errs = append(errs, fmt.Errorf("model.maxSeqLen must be at least 3: %d", c.Model.MaxSeqLen))
	}
	if c.History.Enabled && c.History.DSN == "" {
		errs = append(errs, errors.New("history.dsn is required when history is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
