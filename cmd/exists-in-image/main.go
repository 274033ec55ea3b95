package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	existsinimage "github.com/menta2k/exists-in-image"
	"github.com/menta2k/exists-in-image/internal/config"
	"github.com/menta2k/exists-in-image/internal/logging"
	"github.com/menta2k/exists-in-image/internal/utils"
	"github.com/menta2k/exists-in-image/pkg/types"
)

const (
	exitOK      = 0
	exitError   = 1
	exitUnknown = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)
	fs.SetOutput(stderr)

	var configPath, backend, apiURL, model, keyFile, prompt string
	var timeout time.Duration
	var raw, strict, verbose, lenient bool

	fs.StringVar(&configPath, "config", "", "config file (yaml or json, default "+config.GetConfigPath()+" if present)")
	fs.StringVar(&backend, "backend", "", "backend: chatcompletions|openai|ollama")
	fs.StringVar(&apiURL, "url", "", "chat completions endpoint URL")
	fs.StringVar(&model, "model", "", "model name")
	fs.StringVar(&keyFile, "key", "", "file holding the API key (default ~/openapi.key)")
	fs.DurationVar(&timeout, "timeout", 0, "request timeout, 0 = none")
	fs.BoolVar(&raw, "raw", false, "print the raw model reply instead of yes/no")
	fs.StringVar(&prompt, "prompt", "", "custom prompt for -raw (default asks the exists question)")
	fs.BoolVar(&strict, "strict", false, "exit with status 2 when the answer could not be determined")
	fs.BoolVar(&lenient, "lenient", false, "accept JSON answers wrapped in code fences")
	fs.BoolVar(&verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return exitError
	}

	logger := logging.New(stderr, verbose)

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env: %v", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if backend != "" {
		cfg.API.Backend = backend
	}
	if apiURL != "" {
		cfg.API.URL = apiURL
	}
	if model != "" {
		cfg.API.Model = model
	}
	if keyFile != "" {
		cfg.Credential.Path = keyFile
		cfg.Credential.Env = ""
	}
	if timeout > 0 {
		cfg.API.Timeout = timeout.String()
	}
	if lenient {
		cfg.Detection.Lenient = true
	}
	if verbose {
		cfg.Log.Debug = true
	}

	predicate := cfg.Detection.Predicate
	imagePath := cfg.Detection.ImagePath
	switch fs.NArg() {
	case 0:
	case 1:
		predicate = fs.Arg(0)
	case 2:
		predicate, imagePath = fs.Arg(0), fs.Arg(1)
	default:
		fmt.Fprintf(stderr, "usage: %s [flags] [predicate] [image|dir]\n", fs.Name())
		return exitError
	}
	imagePath = utils.ExpandHome(imagePath)

	checker, err := existsinimage.NewWithConfig(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	images := []string{imagePath}
	if utils.DirExists(imagePath) {
		images, err = utils.ListImageFiles(imagePath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		if len(images) == 0 {
			fmt.Fprintf(stderr, "no images in %s\n", imagePath)
			return exitError
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status := exitOK
	for _, image := range images {
		if raw {
			status = max(status, printRaw(ctx, checker, predicate, prompt, image, stdout, stderr))
			continue
		}

		result := checker.Evaluate(ctx, predicate, image)
		answer := "no."
		if result.Exists() {
			answer = "yes."
		}
		if len(images) > 1 {
			fmt.Fprintf(stdout, "%s: ", filepath.Base(image))
		}
		fmt.Fprintf(stdout, "Does the image contain a %s? %s\n", predicate, answer)

		if strict && result.Verdict == types.Unknown {
			status = exitUnknown
		}
	}
	return status
}

func printRaw(ctx context.Context, checker *existsinimage.Checker, predicate, prompt, image string, stdout, stderr io.Writer) int {
	if prompt == "" {
		prompt = existsinimage.ExistsPrompt(predicate)
	}
	reply, err := checker.Query(ctx, prompt, image)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", image, err)
		return exitError
	}
	fmt.Fprintf(stdout, "Response: %s\n", reply)
	return exitOK
}

// loadConfig reads the explicit file, else the default path when it exists,
// else the defaults, then applies EXISTS_* overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
