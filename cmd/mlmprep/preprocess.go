package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gomlx/go-preprocessing/preprocessing/mlm"
	"github.com/gomlx/go-preprocessing/tokenizers"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// record is one line of output.
type record struct {
	BatchID string     `json:"batch_id"`
	Batch   *mlm.Batch `json:"batch"`
}

func preprocessCmd() *cli.Command {
	var (
		tokenizerDir string
		configPath   string
		inputPath    string
		batchSize    int
		seed         int64
		verbose      bool
	)

	return &cli.Command{
		Name:  "mlmprep",
		Usage: "Masked language model preprocessing of text files, one example per line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tokenizer",
				Aliases:     []string{"t"},
				Usage:       "local preset directory with tokenizer_config.json and vocabulary (overrides tokenizer_dir in config)",
				Destination: &tokenizerDir,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "preprocessor configuration file (yaml, json or toml); MLM_* environment variables override it",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input text file, \"-\" for stdin",
				Value:       "-",
				Destination: &inputPath,
			},
			&cli.IntFlag{Name: "batch-size", Usage: "number of examples per output batch", Value: 32, Destination: &batchSize},
			&cli.Int64Flag{Name: "seed", Usage: "random seed, for reproducible outputs", Destination: &seed},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging", Destination: &verbose},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

			config, err := mlm.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if tokenizerDir != "" {
				config.TokenizerDir = tokenizerDir
			}
			if config.TokenizerDir == "" {
				return errors.New("no tokenizer directory given: use --tokenizer or tokenizer_dir in the config")
			}
			if cmd.IsSet("seed") {
				s := uint64(seed)
				config.Seed = &s
			}
			if batchSize <= 0 {
				return errors.Errorf("--batch-size must be positive, got %d", batchSize)
			}

			tok, err := tokenizers.FromDir(config.TokenizerDir)
			if err != nil {
				return err
			}
			prep, err := mlm.NewFromConfig(tok, config, mlm.WithLogger(logger))
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if inputPath != "-" && inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return errors.Wrapf(err, "failed to open input %q", inputPath)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			w := bufio.NewWriter(os.Stdout)
			if err := preprocessLines(ctx, r, w, prep, batchSize, logger); err != nil {
				_ = w.Flush()
				return err
			}
			return flushOutput(w)
		},
	}
}

// preprocessLines reads r line by line (skipping blank lines), preprocesses batches of batchSize lines
// and writes each batch as one JSON line to w.
func preprocessLines(ctx context.Context, r io.Reader, w io.Writer, prep *mlm.MaskedLMPreprocessor,
	batchSize int, logger zerolog.Logger) error {
	encoder := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		texts      = make([]string, 0, batchSize)
		numBatches int
		numLines   int
	)
	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		batch, err := prep.Call(texts...)
		if err != nil {
			return errors.WithMessagef(err, "while preprocessing batch #%d", numBatches)
		}
		id := uuid.NewString()
		if err = encoder.Encode(&record{BatchID: id, Batch: batch}); err != nil {
			return errors.Wrapf(err, "failed to write batch #%d", numBatches)
		}
		logger.Debug().Str("batch_id", id).Int("examples", len(texts)).Msg("wrote batch")
		numBatches++
		texts = texts[:0]
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		numLines++
		texts = append(texts, line)
		if len(texts) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed reading input")
	}
	if err := flush(); err != nil {
		return err
	}
	logger.Info().Int("examples", numLines).Int("batches", numBatches).Msg("preprocessing done")
	return nil
}

// flushOutput writes any buffered batches, reporting write failures (e.g. a closed pipe) as errors.
func flushOutput(w *bufio.Writer) error {
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush output")
	}
	return nil
}
