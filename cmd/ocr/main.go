/**
 * ocr - multilingual OCR runner
 *
 * Usage: ocr <image_path> <languages>
 *
 * Prints exactly one JSON object on stdout:
 *   {"text", "confidence", "languages_used", "lines_found",
 *    "korean_optimized", "success", "error"?}
 * Diagnostics go to stderr. Exit status is 1 when the image cannot be read,
 * the run panics or the arguments are wrong; a JSON object is printed in
 * every case. --help is an argument error too: the help text goes to stderr
 * and the usage error to stdout.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/adverant/nexus/imagetext-tools/internal/config"
	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
	"github.com/adverant/nexus/imagetext-tools/internal/processor"
	"github.com/adverant/nexus/imagetext-tools/internal/processor/tesseract"
	"github.com/adverant/nexus/imagetext-tools/internal/vision"
)

const usage = "Usage: ocr <image_path> <languages>"

type args struct {
	ImagePath string `arg:"positional,required" placeholder:"IMAGE_PATH" help:"image to recognize"`
	Languages string `arg:"positional,required" placeholder:"LANGUAGES" help:"comma-separated script codes, e.g. ko,en; blank uses the default set"`
	EnvFile   string `arg:"--env-file" default:".env" help:"dotenv file loaded before the environment is read"`
}

func (args) Description() string {
	return "Recognizes text in an image and prints the result as JSON."
}

// pipelineFunc builds the recognition engine and image preparer for a run.
type pipelineFunc func(cfg *config.Config, logger *logging.Logger) (processor.Engine, processor.Preparer)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, newPipeline))
}

func newPipeline(cfg *config.Config, logger *logging.Logger) (processor.Engine, processor.Preparer) {
	engine := tesseract.New(&tesseract.Config{TessdataPrefix: cfg.OCR.TessdataPrefix}, logger)
	preparer := vision.NewPreparer(vision.Options{FullGeneralSet: cfg.OCR.FullGeneralSet}, logger)
	return engine, preparer
}

func run(argv []string, stdout, stderr io.Writer, pipeline pipelineFunc) (code int) {
	emit := func(out *processor.Output) {
		if err := out.WriteJSON(stdout); err != nil {
			fmt.Fprintf(stderr, "failed to write output: %v\n", err)
		}
	}

	var a args
	parser, err := arg.NewParser(arg.Config{Program: "ocr"}, &a)
	if err != nil {
		emit(processor.ErrorOutput(err, nil))
		return 1
	}
	if err := parser.Parse(argv); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelp(stderr)
		}
		emit(processor.ErrorOutput(errors.New(usage), nil))
		return 1
	}

	defer func() {
		if r := recover(); r != nil {
			emit(processor.ErrorOutput(perrors.NewInternalError("", r), nil))
			code = 1
		}
	}()

	// A missing dotenv file is normal; the environment still applies.
	_ = config.LoadEnvFile(a.EnvFile)

	cfg, err := config.LoadConfig()
	if err != nil {
		emit(processor.ErrorOutput(err, nil))
		return 1
	}

	runID := uuid.NewString()
	logger := logging.NewLoggerWithOptions("ocr", logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	}).With("run_id", runID)

	engine, preparer := pipeline(cfg, logger)

	proc, err := processor.NewOCRProcessor(&processor.ProcessorConfig{
		Engine:              engine,
		Preparer:            preparer,
		DefaultLanguages:    ocr.ResolveDefaults(cfg.OCR.DefaultLanguages),
		EarlyExitConfidence: cfg.OCR.EarlyExitConfidence,
		Logger:              logger,
	})
	if err != nil {
		emit(processor.ErrorOutput(err, nil))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := proc.Process(ctx, &processor.ProcessRequest{
		JobID:     runID,
		ImagePath: a.ImagePath,
		Languages: a.Languages,
	})
	emit(out)
	if err != nil {
		return 1
	}
	return 0
}
