package trainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/bertcls/bertcls/config"
	"github.com/ZanzyTHEbar/bertcls/bertcls/corpus"
	"github.com/ZanzyTHEbar/bertcls/bertcls/dataset"
	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding"
	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertcls/bertcls/history"
	"github.com/ZanzyTHEbar/bertcls/bertcls/model"

	"github.com/rs/zerolog"
)

// Components are the pieces shared by training and prediction.
type Components struct {
	Labels    *corpus.LabelSet
	Vocab     *tokenizer.Vocab
	Tokenizer tokenizer.Tokenizer
	Device    model.Device
	Model     *model.Classifier
}

// LoadComponents loads labels, vocabulary, tokenizer and the classifier
// described by cfg. The diagnostic lines the trainer has always printed
// (label count, device) go to out.
func LoadComponents(cfg *config.Config, logger zerolog.Logger, out io.Writer) (*Components, error) {
	labels, err := corpus.LoadLabels(cfg.Train.LabelsPath)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, labels.Len())

	vocab, err := tokenizer.LoadVocab(cfg.Model.VocabPath)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(tokenizer.Config{
		Kind:      cfg.Model.Tokenizer,
		VocabPath: cfg.Model.VocabPath,
		MaxSeqLen: cfg.Model.MaxSeqLen,
		Lowercase: true,
		Logger:    &logger,
	}, vocab)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("vocab", vocab.Len()).Str("tokenizer", fmt.Sprintf("%T", tok)).Msg("tokenizer ready")

	device := model.ResolveDevice(cfg.Encoder.ExecutionProvider, cfg.Encoder.DeviceID, nil)
	fmt.Fprintf(out, "device: %s\n", device)
	logger.Info().Str("device", device.String()).Str("cpu", device.CPU).Int("threads", device.Threads).Bool("avx2", device.AVX2).Msg("device selected")

	logEncoder(logger, cfg)
	encoder := embedding.NewEncoder(embedding.Options{
		Provider:  cfg.Encoder.Provider,
		Dims:      cfg.Model.HiddenSize,
		ModelPath: cfg.Model.BasePath,
		Runtime: embedding.RuntimeOptions{
			ExecutionProvider: device.Kind,
			DeviceID:          device.ID,
			BatchSize:         cfg.Encoder.BatchSize,
		},
	})
	clf, err := model.New(encoder, labels.Len(), device, model.Options{Name: cfg.Model.Name, Seed: cfg.Train.Seed})
	if err != nil {
		return nil, err
	}
	return &Components{Labels: labels, Vocab: vocab, Tokenizer: tok, Device: device, Model: clf}, nil
}

// logEncoder states which pre-trained base is in use. The hash encoder never
// reads model.base.
func logEncoder(logger zerolog.Logger, cfg *config.Config) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Encoder.Provider))
	if strings.HasPrefix(provider, "onnx") {
		logger.Info().Str("provider", provider).Str("base", cfg.Model.BasePath).Int("hidden", cfg.Model.HiddenSize).Msg("encoder selected")
		return
	}
	logger.Warn().
		Str("provider", cfg.Encoder.Provider).
		Str("base", cfg.Model.BasePath).
		Int("hidden", cfg.Model.HiddenSize).
		Msg("hash encoder selected, pre-trained base model is ignored")
}

// Build wires a Trainer from configuration. The returned cleanup closes the
// history store, if any.
func Build(cfg *config.Config, logger zerolog.Logger, out, progress io.Writer) (*Trainer, func() error, error) {
	noop := func() error { return nil }

	comps, err := LoadComponents(cfg, logger, out)
	if err != nil {
		return nil, noop, err
	}

	if cfg.Train.Resume {
		epoch, err := comps.Model.Load(cfg.Train.OutPath)
		switch {
		case err == nil:
			logger.Info().Str("checkpoint", cfg.Train.OutPath).Int("epoch", epoch).Msg("resuming from checkpoint")
		case errors.Is(err, os.ErrNotExist):
			logger.Debug().Str("checkpoint", cfg.Train.OutPath).Msg("no checkpoint to resume from")
		default:
			return nil, noop, fmt.Errorf("resume: %w", err)
		}
	}

	sentsSrc, sentsTgt, err := corpus.ReadCorpus(cfg.Train.CorpusPath)
	if err != nil {
		return nil, noop, err
	}
	if len(sentsSrc) == 0 {
		return nil, noop, fmt.Errorf("corpus %s is empty", cfg.Train.CorpusPath)
	}
	for i, y := range sentsTgt {
		if y < 0 || y >= comps.Labels.Len() {
			return nil, noop, fmt.Errorf("corpus example %d has label %d outside [0,%d)", i, y, comps.Labels.Len())
		}
	}
	ds, err := dataset.New(sentsSrc, sentsTgt, comps.Tokenizer)
	if err != nil {
		return nil, noop, err
	}
	loader, err := dataset.NewLoader(ds, cfg.Train.BatchSize,
		dataset.WithSeed(cfg.Train.Seed),
		dataset.WithWorkers(cfg.Train.Workers),
	)
	if err != nil {
		return nil, noop, err
	}
	logger.Info().Int("examples", ds.Len()).Int("batches", loader.NumBatches()).Msg("corpus loaded")

	deps := Deps{
		Tokenizer: comps.Tokenizer,
		Model:     comps.Model,
		Optimizer: model.NewAdam(cfg.Train.LearningRate, cfg.Train.WeightDecay),
		Labels:    comps.Labels,
		Loader:    loader,
		Logger:    logger,
		Out:       out,
		Progress:  progress,
	}
	if raw, err := json.Marshal(cfg); err != nil {
		logger.Warn().Err(err).Msg("could not encode run config for history")
	} else {
		deps.RunConfig = string(raw)
	}

	cleanup := noop
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DSN)
		if err != nil {
			return nil, noop, err
		}
		deps.History = store
		cleanup = store.Close
	}

	t, err := New(cfg.Train, deps)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return t, cleanup, nil
}
