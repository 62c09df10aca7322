// Package trainer drives supervised training of the classifier: the epoch
// loop, periodic diagnostics and checkpoint persistence.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZanzyTHEbar/bertcls/bertcls/config"
	"github.com/ZanzyTHEbar/bertcls/bertcls/corpus"
	"github.com/ZanzyTHEbar/bertcls/bertcls/dataset"
	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertcls/bertcls/history"
	"github.com/ZanzyTHEbar/bertcls/bertcls/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v2"
	"gonum.org/v1/gonum/mat"
)

// State is the trainer lifecycle state.
type State int

const (
	Initialized State = iota
	Training
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Training:
		return "training"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Model is the classifier being trained.
type Model interface {
	Scorer
	Forward(ctx context.Context, tokenIDs, typeIDs [][]int64, labels []int) (*mat.Dense, float64, error)
	Train()
	Eval()
	Training() bool
	ZeroGrad()
	Backward() error
	Parameters() []*model.Param
	Save(path string, epoch int) error
}

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	Step(params []*model.Param) error
}

// Recorder keeps a history of runs. Optional.
type Recorder interface {
	StartRun(ctx context.Context, config string) (uuid.UUID, error)
	RecordEpoch(ctx context.Context, e history.Epoch) error
	FinishRun(ctx context.Context, id uuid.UUID, status string) error
}

// Deps are the collaborators injected into a Trainer.
type Deps struct {
	Tokenizer tokenizer.Tokenizer
	Model     Model
	Optimizer Optimizer
	Labels    *corpus.LabelSet
	Loader    *dataset.Loader
	History   Recorder
	Logger    zerolog.Logger
	// Out receives the plain-text diagnostics; defaults to stdout.
	Out io.Writer
	// Progress receives the per-epoch progress bar; nil disables it.
	Progress io.Writer
	// RunConfig is stored with the run history.
	RunConfig string
}

// EpochResult summarises one pass over the loader.
type EpochResult struct {
	Epoch    int
	Steps    int
	Examples int
	Loss     float64
	Duration time.Duration
}

// Trainer owns the model, optimizer and data loader for one process.
type Trainer struct {
	cfg       config.TrainConfig
	model     Model
	optimizer Optimizer
	loader    *dataset.Loader
	predictor *Predictor
	history   Recorder
	logger    zerolog.Logger
	out       io.Writer
	progress  io.Writer
	runConfig string

	state State
	runID uuid.UUID
}

// New validates cfg and deps and returns an initialized Trainer.
func New(cfg config.TrainConfig, deps Deps) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive: %d", cfg.Epochs)
	}
	if cfg.EvalInterval <= 0 {
		return nil, fmt.Errorf("eval interval must be positive: %d", cfg.EvalInterval)
	}
	if cfg.OutPath == "" {
		return nil, errors.New("checkpoint output path is required")
	}
	if deps.Model == nil || deps.Optimizer == nil || deps.Loader == nil {
		return nil, errors.New("trainer needs a model, an optimizer and a loader")
	}
	predictor, err := NewPredictor(deps.Tokenizer, deps.Model, deps.Labels)
	if err != nil {
		return nil, err
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &Trainer{
		cfg:       cfg,
		model:     deps.Model,
		optimizer: deps.Optimizer,
		loader:    deps.Loader,
		predictor: predictor,
		history:   deps.History,
		logger:    deps.Logger,
		out:       out,
		progress:  deps.Progress,
		runConfig: deps.RunConfig,
		state:     Initialized,
	}, nil
}

// State returns the current lifecycle state.
func (t *Trainer) State() State { return t.state }

// RunID returns the history run ID, or uuid.Nil without history.
func (t *Trainer) RunID() uuid.UUID { return t.runID }

// Run trains for the configured number of epochs. Any error aborts the run
// and leaves the trainer Failed.
func (t *Trainer) Run(ctx context.Context) error {
	if t.state != Initialized {
		return fmt.Errorf("trainer cannot run from state %s", t.state)
	}
	if t.history != nil {
		id, err := t.history.StartRun(ctx, t.runConfig)
		if err != nil {
			t.state = Failed
			return fmt.Errorf("start run: %w", err)
		}
		t.runID = id
	}

	t.state = Training
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if res, err := t.Epoch(ctx, epoch); err != nil {
			t.logger.Warn().
				Int("epoch", epoch).
				Int("steps", res.Steps).
				Int("consumed", t.loader.Consumed()).
				Int("remaining", len(t.loader.Remaining())).
				Msg("epoch interrupted, checkpoint not written")
			t.fail(err)
			return err
		}
	}
	t.state = Completed
	t.finishRun(history.StatusCompleted)
	t.logger.Info().Int("epochs", t.cfg.Epochs).Str("checkpoint", t.cfg.OutPath).Msg("training completed")
	return nil
}

func (t *Trainer) fail(err error) {
	t.state = Failed
	t.logger.Error().Err(err).Msg("training failed")
	t.finishRun(history.StatusFailed)
}

func (t *Trainer) finishRun(status string) {
	if t.history == nil || t.runID == uuid.Nil {
		return
	}
	// the run context may already be cancelled
	if err := t.history.FinishRun(context.Background(), t.runID, status); err != nil {
		t.logger.Warn().Err(err).Str("run", t.runID.String()).Msg("failed to finish run history")
	}
}

// Epoch runs one full pass over the loader, then saves the checkpoint.
func (t *Trainer) Epoch(ctx context.Context, epoch int) (EpochResult, error) {
	res := EpochResult{Epoch: epoch}
	t.model.Train()
	start := time.Now()
	bar := t.newBar()

	for batch, err := range t.loader.Epoch(ctx) {
		if err != nil {
			return res, fmt.Errorf("epoch %d step %d: %w", epoch, res.Steps+1, err)
		}
		res.Steps++
		if res.Steps%t.cfg.EvalInterval == 0 {
			if err := t.diagnose(ctx); err != nil {
				return res, fmt.Errorf("epoch %d step %d diagnostics: %w", epoch, res.Steps, err)
			}
		}

		_, loss, err := t.model.Forward(ctx, batch.TokenIDs, batch.TokenTypeIDs, batch.TargetIDs)
		if err != nil {
			return res, fmt.Errorf("epoch %d step %d forward: %w", epoch, res.Steps, err)
		}
		if t.model.Training() {
			t.model.ZeroGrad()
			if err := t.model.Backward(); err != nil {
				return res, fmt.Errorf("epoch %d step %d backward: %w", epoch, res.Steps, err)
			}
			if err := t.optimizer.Step(t.model.Parameters()); err != nil {
				return res, fmt.Errorf("epoch %d step %d optimizer: %w", epoch, res.Steps, err)
			}
		}
		res.Loss += loss
		if bar != nil {
			_ = bar.Add(1)
		}
		t.logger.Debug().Int("epoch", epoch).Int("step", res.Steps).Float64("loss", loss).Msg("step")
	}
	if bar != nil {
		fmt.Fprintln(t.progress)
	}

	res.Duration = time.Since(start)
	res.Examples = t.loader.Consumed()
	fmt.Fprintf(t.out, "epoch is %d. loss is %v. spend time is %v\n", epoch, res.Loss, res.Duration.Seconds())
	t.logger.Info().Int("epoch", epoch).Int("steps", res.Steps).Float64("loss", res.Loss).Dur("elapsed", res.Duration).Msg("epoch finished")

	if err := t.model.Save(t.cfg.OutPath, epoch); err != nil {
		return res, fmt.Errorf("epoch %d save: %w", epoch, err)
	}
	fmt.Fprintf(t.out, "%s saved!\n", t.cfg.OutPath)

	if t.history != nil && t.runID != uuid.Nil {
		err := t.history.RecordEpoch(ctx, history.Epoch{
			RunID:      t.runID,
			Epoch:      epoch,
			Loss:       res.Loss,
			Steps:      res.Steps,
			Duration:   res.Duration,
			Checkpoint: t.cfg.OutPath,
		})
		if err != nil {
			return res, fmt.Errorf("epoch %d history: %w", epoch, err)
		}
	}
	return res, nil
}

// diagnose prints the predicted label of every diagnostic sentence. The
// model is in eval mode for the duration and back in training mode after.
func (t *Trainer) diagnose(ctx context.Context) error {
	t.model.Eval()
	defer t.model.Train()
	for _, text := range t.cfg.DiagnosticSentences {
		_, name, err := t.predictor.Classify(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintln(t.out, name)
		t.logger.Debug().Str("text", text).Str("label", name).Msg("diagnostic prediction")
	}
	return nil
}

func (t *Trainer) newBar() *progressbar.ProgressBar {
	if t.progress == nil {
		return nil
	}
	return progressbar.NewOptions(t.loader.NumBatches(),
		progressbar.OptionSetWriter(t.progress),
		progressbar.OptionSetWidth(40),
	)
}
