/**
 * deskew - straighten a scanned document image
 *
 * Usage: deskew <input_path> <output_path>
 *
 * Estimates the page tilt from Hough lines and the dominant text block,
 * rotates the image when the tilt exceeds DESKEW_MIN_ANGLE and writes the
 * result (corrected or original) to output_path. Exit status is 1 when the
 * input cannot be read or the output cannot be written.
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
	"github.com/adverant/nexus/imagetext-tools/internal/deskew"
	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
)

type args struct {
	InputPath  string `arg:"positional,required" placeholder:"INPUT_PATH" help:"image to straighten"`
	OutputPath string `arg:"positional,required" placeholder:"OUTPUT_PATH" help:"where to write the result"`
	EnvFile    string `arg:"--env-file" default:".env" help:"dotenv file loaded before the environment is read"`
}

func (args) Description() string {
	return "Corrects small rotational skew in a scanned document image."
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) (code int) {
	var a args
	parser, err := arg.NewParser(arg.Config{Program: "deskew"}, &a)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := parser.Parse(argv); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelp(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		parser.WriteUsage(stderr)
		return 1
	}

	// A missing dotenv file is normal; the environment still applies.
	_ = config.LoadEnvFile(a.EnvFile)

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger := logging.NewLoggerWithOptions("deskew", logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	}).With("run_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Deskew panicked", "error", perrors.NewInternalError("", r))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	corrector := deskew.NewCorrector(cfg.Deskew.MinAngle, logger)
	res, err := corrector.Deskew(ctx, a.InputPath, a.OutputPath)
	if err != nil {
		logger.Error("Deskew failed", "input", a.InputPath, "code", perrors.CodeOf(err), "error", err)
		return 1
	}

	if res.Corrected {
		fmt.Fprintf(stderr, "Deskewed by %.2f°\n", res.Angle)
	}
	logger.Info("Image written", "output", res.OutputPath, "angle", res.Angle, "corrected", res.Corrected)
	return 0
}
