// Command modelcheck verifies that face mesh models load and expose the
// layout the detector expects.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tsawler/go-metal/checkpoints"

	"github.com/dudu/facesignal/internal/config"
	"github.com/dudu/facesignal/internal/detector"
	"github.com/dudu/facesignal/internal/inference"
	"github.com/dudu/facesignal/pkg/log"
)

func main() {
	library := flag.String("lib", "", "ONNX Runtime shared library (default: first configured path)")
	metal := flag.Bool("metal", false, "Also try importing each model with go-metal")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelcheck [options] [model.onnx ...]\n\n")
		fmt.Fprintf(os.Stderr, "Without arguments the configured face mesh models are checked.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := log.New(log.Options{Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	models := flag.Args()
	if len(models) == 0 {
		models = cfg.ModelPaths
	}
	if *library == "" && len(cfg.LibraryPaths) > 0 {
		*library = firstExisting(cfg.LibraryPaths)
	}

	if err := inference.Initialize(*library); err != nil {
		logger.WithError(err).Error("failed to initialize ONNX Runtime")
		fmt.Println("\nYou may need to install ONNX Runtime:")
		fmt.Println("  brew install onnxruntime")
		os.Exit(1)
	}
	defer inference.Shutdown()

	failed := 0
	for _, model := range models {
		if err := check(model, *metal, logger); err != nil {
			logger.WithError(err).WithField("model", model).Error("model check failed")
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func check(modelPath string, metal bool, logger logrus.FieldLogger) error {
	fmt.Printf("\nChecking %s\n", modelPath)

	if _, err := os.Stat(modelPath); err != nil {
		return err
	}

	inputs, outputs, err := inference.Inspect(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("  Inputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("    %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("  Outputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("    %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}

	var errs []error
	if err := detector.CheckLayout(inputs, outputs); err != nil {
		errs = append(errs, fmt.Errorf("unexpected layout: %w", err))
	} else {
		fmt.Println("  Layout: ok")
	}

	if metal {
		importer := checkpoints.NewONNXImporter()
		checkpoint, err := importer.ImportFromONNX(modelPath)
		if err != nil {
			// go-metal supports a small operator set; face mesh models
			// commonly use PRelu and padding it lacks.
			logger.WithError(err).WithField("model", modelPath).Warn("go-metal import failed")
		} else {
			fmt.Printf("  go-metal: %d layers, %d weight tensors\n",
				len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
		}
	}

	return errors.Join(errs...)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return paths[0]
}
