package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default directory for the global config file
	DefaultAppName    = "bertcls"
	DefaultEnvPrefix  = "BERTCLS"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultHistoryDSN = "file:" + filepath.Join(DefaultConfigPath, "history.db")

	// DefaultDiagnosticSentences are classified every EvalInterval steps as a sanity check.
	DefaultDiagnosticSentences = []string{
		"编剧梁馨月讨稿酬六六何念助阵 公司称协商解决",
		"西班牙BBVA第三季度净利降至15.7亿美元",
		"基金巨亏30亿 欲打开云天系跌停自救",
	}
)

// Training defaults
const (
	DefaultEpochs        = 100
	DefaultOutPath       = "./bert_multi_classify_model.bin"
	DefaultCorpusPath    = "./corpus/train.txt"
	DefaultLabelsPath    = "./corpus/name.txt"
	DefaultBatchSize     = 16
	DefaultLearningRate  = 1e-5
	DefaultWeightDecay   = 1e-3
	DefaultEvalInterval  = 2000
	DefaultSeed          = 42
	DefaultLoaderWorkers = 4
)

// Model defaults
const (
	DefaultModelName         = "roberta"
	DefaultVocabPath         = "./state_dict/roberta_wwm_vocab.txt"
	DefaultBaseModelPath     = "./state_dict/roberta_wwm.onnx"
	DefaultTokenizer         = "sugarme"
	DefaultHiddenSize        = 768
	DefaultMaxSeqLen         = 512
	DefaultEncoderProvider   = "hash"
	DefaultExecutionProvider = "cpu"
	DefaultEncoderBatchSize  = 32
	DefaultLogLevel          = "info"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds a leveled logger writing to w. A console writer is used
// when w is a terminal.
func NewLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", DefaultAppName).Logger(), nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
