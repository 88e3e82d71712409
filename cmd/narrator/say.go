package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"feed-narrator/internal/models"
	"feed-narrator/internal/tts"

	"github.com/spf13/cobra"
)

const sampleText = "This is a short sample used to check that speech synthesis works."

func newSayCmd(g *globalFlags) *cobra.Command {
	f := &audioFlags{}
	var out string

	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Synthesize a text sample with the configured speech backend",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			log := newLogger(cmd, cfg)

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				text = sampleText
			}

			synth, err := tts.Factory(cfg.Audio, log)
			if err != nil {
				return err
			}

			start := time.Now()
			words := models.CountWords(text)
			result, err := tts.Render(cmd.Context(), synth, text, words, models.AudioRenderRequest{
				Model:      cfg.Audio.Model,
				Voice:      cfg.Audio.Voice,
				Speed:      cfg.Audio.Speed,
				LangCode:   cfg.Audio.LangCode,
				OutputPath: out,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", synth.Provider(), err)
			}

			info, err := os.Stat(result.OutputPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %s (%d bytes) in %v, estimated %.1fs of speech\n",
				synth.Provider(), result.OutputPath, info.Size(), time.Since(start).Round(time.Millisecond), result.EstimatedDurationSeconds)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "sample.wav", "output WAV file")
	return cmd
}
