package main

import (
	"fmt"
	"io"
	"os"

	internal "github.com/ZanzyTHEbar/bertcls/bertcls"
	"github.com/ZanzyTHEbar/bertcls/bertcls/config"
	"github.com/ZanzyTHEbar/bertcls/bertcls/trainer"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootArgs are the flags shared by every command.
type rootArgs struct {
	configPath string
	epochs     int
	outPath    string
	corpusPath string
	labelsPath string
	resume     bool
	logLevel   string
	progress   bool
}

func newRootCmd() *cobra.Command {
	var args rootArgs
	cmd := &cobra.Command{
		Use:   internal.DefaultAppName,
		Short: "Train a multi-class text classifier",
		Long: `
Fine-tunes a linear classification head on top of a frozen pre-trained
encoder. Every epoch ends with a checkpoint written to --out.
	`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			var progress io.Writer
			if args.progress {
				progress = os.Stderr
			}
			t, cleanup, err := trainer.Build(cfg, logger, cmd.OutOrStdout(), progress)
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					logger.Warn().Err(err).Msg("failed to close history store")
				}
			}()
			return t.Run(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&args.configPath, "config", "c", "", "config file (default is ./config.yaml or $HOME/.config/bertcls/config.yaml)")
	flags.IntVarP(&args.epochs, "epoch", "p", internal.DefaultEpochs, "number of training epochs")
	flags.StringVarP(&args.outPath, "out", "o", internal.DefaultOutPath, "checkpoint output path")
	flags.StringVarP(&args.corpusPath, "train", "t", internal.DefaultCorpusPath, "training corpus path")
	flags.StringVarP(&args.labelsPath, "name", "n", internal.DefaultLabelsPath, "label names path")
	flags.BoolVar(&args.resume, "resume", true, "load the checkpoint at --out before training when it exists")
	flags.StringVar(&args.logLevel, "log-level", internal.DefaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&args.progress, "progress", true, "draw a per-epoch progress bar on stderr")

	cmd.AddCommand(newPredictCmd(&args))
	return cmd
}

// loadConfig merges the config file, environment and flags and builds the
// logger for the configured level.
func loadConfig(cmd *cobra.Command, args rootArgs) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(args.configPath, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := internal.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to build logger: %w", err)
	}
	logger.Debug().
		Int("epochs", cfg.Train.Epochs).
		Str("out", cfg.Train.OutPath).
		Str("corpus", cfg.Train.CorpusPath).
		Str("labels", cfg.Train.LabelsPath).
		Msg("configuration loaded")
	return cfg, logger, nil
}
