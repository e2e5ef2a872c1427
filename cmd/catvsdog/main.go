package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log"
	cli "github.com/urfave/cli/v2"

	"github.com/menta2k/catvsdog/internal/backend"
	"github.com/menta2k/catvsdog/internal/config"
	"github.com/menta2k/catvsdog/internal/utils"
	"github.com/menta2k/catvsdog/internal/web"
	"github.com/menta2k/catvsdog/pkg/form"
	"github.com/menta2k/catvsdog/pkg/processing"
	"github.com/menta2k/catvsdog/pkg/types"
)

var log = logging.Logger("catvsdog")

func main() {
	app := cli.NewApp()
	app.Name = "catvsdog"
	app.Usage = "send images to a classification endpoint and show the predicted label"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to a JSON or YAML config file",
			EnvVars: []string{"CATVSDOG_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"CATVSDOG_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "http, ollama or llamacpp",
			EnvVars: []string{"CATVSDOG_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Usage:   "classifier URL",
			EnvVars: []string{"CATVSDOG_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "vision model name for the ollama and llamacpp backends",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-request timeout, 0 for none",
		},
		&cli.IntFlag{
			Name:  "max-side",
			Usage: "shrink images so the longest side is at most this many pixels before upload, 0 to send as-is",
		},
	}
	app.Commands = []*cli.Command{
		serveCmd,
		predictCmd,
		configCmd,
	}

	app.RunAndExitOnError()
}

// loadConfig merges the config file, if any, with global flags
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := cctx.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if utils.FileExists(config.GetConfigPath()) {
		loaded, err := config.LoadFromFile(config.GetConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cctx.IsSet("log-level") {
		cfg.Log.Level = cctx.String("log-level")
	}
	if cctx.IsSet("backend") {
		cfg.Classifier.Backend = cctx.String("backend")
	}
	if cctx.IsSet("endpoint") {
		cfg.Classifier.Endpoint = cctx.String("endpoint")
	}
	if cctx.IsSet("model") {
		cfg.Classifier.Model = cctx.String("model")
	}
	if cctx.IsSet("timeout") {
		cfg.Classifier.Timeout = config.Duration(cctx.Duration("timeout"))
	}
	if cctx.IsSet("max-side") {
		cfg.Upload.MaxSide = cctx.Int("max-side")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.SetLogLevel("*", cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	return cfg, nil
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the upload form web server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			EnvVars: []string{"CATVSDOG_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if cctx.IsSet("listen") {
			cfg.Server.Listen = cctx.String("listen")
		}

		classifier, err := backend.New(cfg)
		if err != nil {
			return err
		}

		srv, err := web.NewServer(classifier, web.Config{
			Field:        cfg.Upload.Field,
			MaxBytes:     cfg.Upload.MaxBytes,
			SessionCache: cfg.Server.SessionCache,
			SecureCookie: cfg.Server.SecureCookie,
			FormOptions:  backend.FormOptions(cfg),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Infof("serving upload form on %s (backend %s, endpoint %s)", cfg.Server.Listen, cfg.Classifier.Backend, cfg.Classifier.Endpoint)
		return srv.Start(ctx, cfg.Server.Listen)
	},
}

var predictCmd = &cli.Command{
	Name:      "predict",
	Usage:     "classify image files or URLs and print the prediction",
	ArgsUsage: "<file|URL>...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "allow-empty",
			Usage: "send a request even when no file is given",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if cctx.Bool("allow-empty") {
			cfg.Upload.RequireFile = false
		}

		classifier, err := backend.New(cfg)
		if err != nil {
			return err
		}

		f := form.NewWithOptions(classifier, backend.FormOptions(cfg))
		proc := processing.NewProcessor()
		out := cctx.App.Writer

		sources := cctx.Args().Slice()
		if len(sources) == 0 {
			// an empty selection still goes through the form
			sources = []string{""}
		}

		for _, src := range sources {
			var files []*types.File
			if src != "" {
				file, err := proc.Load(src)
				if err != nil {
					log.Errorf("loading %s: %s", src, err)
					continue
				}
				if info, err := proc.Info(file); err == nil {
					log.Infof("%s: %s %dx%d, %s", file.Name, info.Format, info.Width, info.Height, utils.FormatFileSize(info.Bytes))
				}
				files = []*types.File{file}
			}
			f.SelectFiles(files)

			ctx, cancel := context.WithTimeout(cctx.Context, requestBudget(cfg))
			res := f.Submit(ctx)
			cancel()

			if msg := f.Validation(); msg != "" {
				fmt.Fprintln(out, msg)
				continue
			}
			if !res.OK() {
				continue
			}
			if text := form.PredictionText(f.Label()); text != "" {
				fmt.Fprintln(out, text)
			}
		}
		return nil
	},
}

// requestBudget bounds one CLI submission so a stuck backend cannot hang it
func requestBudget(cfg *config.Config) time.Duration {
	if d := time.Duration(cfg.Classifier.Timeout); d > 0 {
		return d
	}
	return 10 * time.Minute
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "manage the config file",
	Subcommands: []*cli.Command{
		{
			Name:      "init",
			Usage:     "write the default config",
			ArgsUsage: "[path]",
			Action: func(cctx *cli.Context) error {
				path := cctx.Args().First()
				if path == "" {
					path = config.GetConfigPath()
				}
				if utils.FileExists(path) {
					return fmt.Errorf("%s already exists", path)
				}
				if err := config.Default().SaveToFile(path); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "wrote %s\n", path)
				return nil
			},
		},
	},
}
