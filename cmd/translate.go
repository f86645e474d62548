package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/latexmt-web/internal/format"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/service"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/file"
)

var translateOpts struct {
	src, tgt    string
	glossary    string
	backend     string
	model       string
	inputPrefix string
	token       string
	placeholder string
	output      string
}

var translateCmd = &cobra.Command{
	Use:   "translate FILE",
	Short: "Translate one LaTeX file without the job queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger := initLogger(cfg)

		input, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var gloss []byte
		if translateOpts.glossary != "" {
			if gloss, err = os.ReadFile(translateOpts.glossary); err != nil {
				return fmt.Errorf("read glossary: %w", err)
			}
		}

		factory := &translator.DefaultFactory{APIKey: cfg.Translator.APIKey, APIURL: cfg.Translator.APIURL, Logger: logger}
		single := service.NewSingleShot(
			resource.NewPool(factory, logger),
			format.New(cfg.Format.Bin, cfg.Format.Conf, logger),
			cfg.BackendDefaults(),
			logger,
		)

		res := single.Translate(cmd.Context(), service.TextRequest{
			Text:        string(input),
			SrcLang:     translateOpts.src,
			TgtLang:     translateOpts.tgt,
			Glossary:    string(gloss),
			Backend:     translateOpts.backend,
			Model:       translateOpts.model,
			InputPrefix: translateOpts.inputPrefix,
			Token:       translateOpts.token,
			Placeholder: translateOpts.placeholder,
		})
		if res.Outcome == service.OutcomeFailed {
			return res.Err
		}

		out := translateOpts.output
		if out == "" {
			out = file.WithSuffix(args[0], translateOpts.tgt)
		}
		if err := os.WriteFile(out, []byte(res.Text), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s, source %s)\n", args[0], out, res.Outcome, res.SrcLang)
		return nil
	},
}

func init() {
	f := translateCmd.Flags()
	f.StringVar(&translateOpts.src, "src", service.AutoDetect, "source language, or auto")
	f.StringVar(&translateOpts.tgt, "tgt", "", "target language")
	f.StringVar(&translateOpts.glossary, "glossary", "", "glossary file with one 'source = target' entry per line")
	f.StringVar(&translateOpts.backend, "backend", "", "translator backend (identity, api)")
	f.StringVar(&translateOpts.model, "model", "", "model for the api backend")
	f.StringVar(&translateOpts.inputPrefix, "input-prefix", "", "text prepended to every segment sent to the engine")
	f.StringVar(&translateOpts.token, "token", "", "API token for the api backend")
	f.StringVar(&translateOpts.placeholder, "placeholder", "", "mask template containing one %d")
	f.StringVarP(&translateOpts.output, "output", "o", "", "output file (default FILE with the target language suffix)")
	_ = translateCmd.MarkFlagRequired("tgt")
}
