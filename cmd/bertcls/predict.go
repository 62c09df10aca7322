package main

import (
	"fmt"
	"io"

	"github.com/ZanzyTHEbar/bertcls/bertcls/trainer"

	"github.com/spf13/cobra"
)

func newPredictCmd(root *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "predict [text...]",
		Short: "Classify texts with a trained checkpoint",
		Long: `
Loads the checkpoint at --out and prints the predicted label of each text.
Without arguments the configured diagnostic sentences are classified.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *root)
			if err != nil {
				return err
			}
			comps, err := trainer.LoadComponents(cfg, logger, io.Discard)
			if err != nil {
				return err
			}
			epoch, err := comps.Model.Load(cfg.Train.OutPath)
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}
			logger.Info().Str("checkpoint", cfg.Train.OutPath).Int("epoch", epoch).Msg("checkpoint loaded")
			comps.Model.Eval()

			p, err := trainer.NewPredictor(comps.Tokenizer, comps.Model, comps.Labels)
			if err != nil {
				return err
			}
			texts := args
			if len(texts) == 0 {
				texts = cfg.Train.DiagnosticSentences
			}
			out := cmd.OutOrStdout()
			for _, text := range texts {
				_, name, err := p.Classify(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", name, text)
			}
			return nil
		},
	}
}
