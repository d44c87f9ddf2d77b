// Package main implements the fhirschema CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/batch"
	"github.com/gofhir/fhirschema/codec"
	"github.com/gofhir/fhirschema/internal/config"
	"github.com/gofhir/fhirschema/logger"
	"github.com/gofhir/fhirschema/registry"
	"github.com/gofhir/fhirschema/terminology"
)

// exitError carries a process exit code without a message of its own.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

// app is the state shared by all commands, built once flags are parsed.
type app struct {
	v     *viper.Viper
	cfg   *config.Config
	log   zerolog.Logger
	codec *codec.Codec
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "fhirschema",
		Short:         "Schema-driven FHIR R4 JSON and XML codec",
		Version:       fhirschema.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ./fhirschema.yaml)")
	flags.StringP("format", "f", "json", "input format: json or xml")
	flags.StringP("output", "o", "text", "output format: text or json")
	flags.Bool("strict", false, "check references, invariants and positions")
	flags.Bool("invariants", false, "evaluate FHIRPath invariants")
	flags.Bool("preserve-unknown", true, "keep unknown members as extension data")
	flags.Bool("advisory", true, "report warnings and information issues")
	flags.Bool("positions", true, "attach line and column to JSON issues")
	flags.Int("max-errors", 0, "stop after this many errors per document (0 = unlimited)")
	flags.IntP("workers", "w", 0, "parallel documents (0 = number of CPUs)")
	flags.BoolP("quiet", "q", false, "only print failures")
	flags.String("terminology-dir", "", "directory of ValueSet/CodeSystem JSON files")
	flags.String("log-level", "warn", "log level: debug, info, warn, error, none")
	flags.Bool("log-console", true, "human readable log output")

	for _, name := range []string{
		"format", "output", "strict", "invariants", "preserve-unknown", "advisory",
		"positions", "max-errors", "workers", "quiet", "terminology-dir", "log-level", "log-console",
	} {
		_ = a.v.BindPFlag(configKey(name), flags.Lookup(name))
	}

	root.AddCommand(
		newValidateCmd(a),
		newConvertCmd(a),
		newSchemasCmd(a),
		newDescribeCmd(a),
		newExportCmd(a),
	)
	return root
}

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func (a *app) init(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel), cfg.LogConsole)
	logger.SetDefault(a.log)

	reg, err := registry.Default()
	if err != nil {
		return fmt.Errorf("loading schemas: %w", err)
	}
	a.codec = codec.New(reg, cfg.Options()...)
	a.codec.SetLogger(a.log)

	if cfg.TerminologyDir != "" {
		store := terminology.NewStore()
		store.LoadBindings(reg)
		stats, err := store.LoadFS(os.DirFS(cfg.TerminologyDir), ".")
		if err != nil {
			return err
		}
		a.log.Info().
			Int("valueSets", stats.ValueSets).
			Int("codeSystems", stats.CodeSystems).
			Int("errors", stats.Errors).
			Str("dir", cfg.TerminologyDir).
			Msg("terminology loaded")
		a.codec.SetCodeValidator(store)
	}
	return nil
}

// decodeFunc returns the decoder for the configured input format.
func (a *app) decodeFunc() batch.DecodeFunc {
	if a.cfg.Format == "xml" {
		return a.codec.DecodeXML
	}
	return a.codec.Decode
}

func (a *app) validateFunc() batch.ValidateFunc {
	if a.cfg.Format == "xml" {
		return a.codec.ValidateXML
	}
	return a.codec.Validate
}
