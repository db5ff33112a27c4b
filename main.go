package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/videofx/cmd"
	"github.com/smazurov/videofx/internal/api"
	"github.com/smazurov/videofx/internal/config"
	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/logging"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/processor"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/source"
	"github.com/smazurov/videofx/internal/types"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Pipeline settings
	PipelineInputTypes      string `help:"Comma separated input types to register" default:"surface,bitmap,texture_id" toml:"pipeline.input_types" env:"PIPELINE_INPUT_TYPES"`
	PipelineSurfaceCapacity int    `help:"Frames the input surface buffers before Draw blocks" default:"3" toml:"pipeline.surface_capacity" env:"PIPELINE_SURFACE_CAPACITY"`
	PipelineHDRInput        bool   `help:"Treat input as HDR (BT.2020 PQ); disables the bitmap input" default:"false" toml:"pipeline.hdr_input" env:"PIPELINE_HDR_INPUT"`
	PipelineGrayscale       bool   `help:"Apply a grayscale effect before output" default:"false" toml:"pipeline.grayscale" env:"PIPELINE_GRAYSCALE"`
	PipelineOutputWidth     int    `help:"Output width of the effect stage (0 keeps input size)" default:"0" toml:"pipeline.output_width" env:"PIPELINE_OUTPUT_WIDTH"`
	PipelineOutputHeight    int    `help:"Output height of the effect stage (0 keeps input size)" default:"0" toml:"pipeline.output_height" env:"PIPELINE_OUTPUT_HEIGHT"`

	// Demo source settings
	DemoEnabled    bool   `help:"Loop the built-in scenario through the pipeline" default:"false" toml:"demo.enabled" env:"DEMO_ENABLED"`
	DemoScenario   string `help:"Scenario file for the demo loop (empty uses the built-in one)" default:"" toml:"demo.scenario" env:"DEMO_SCENARIO"`
	DemoResolution string `help:"Demo test pattern resolution" default:"640x360" toml:"demo.resolution" env:"DEMO_RESOLUTION"`
	DemoFPS        string `help:"Demo test pattern frame rate" default:"30" toml:"demo.fps" env:"DEMO_FPS"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSwitcher  string `help:"Switcher logging level" default:"info" toml:"logging.switcher" env:"LOGGING_SWITCHER"`
	LoggingExecutor  string `help:"Executor logging level" default:"info" toml:"logging.executor" env:"LOGGING_EXECUTOR"`
	LoggingProcessor string `help:"Processor logging level" default:"info" toml:"logging.processor" env:"LOGGING_PROCESSOR"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// outputLogger is the pipeline listener of the server.
type outputLogger struct {
	logger *slog.Logger
}

func (l outputLogger) OnOutputFrameAvailable(frame shader.OutputFrame) {
	l.logger.Debug("Output frame", "pts_us", frame.PresentationTimeUs)
}

func (l outputLogger) OnError(err error) {
	l.logger.Error("Pipeline error", "error", err)
}

func (l outputLogger) OnEnded() {
	l.logger.Info("Input stream ended")
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"switcher":  opts.LoggingSwitcher,
				"executor":  opts.LoggingExecutor,
				"processor": opts.LoggingProcessor,
				"api":       opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		var inputTypes []types.InputType
		for _, name := range strings.Split(opts.PipelineInputTypes, ",") {
			t, err := types.ParseInputType(name)
			if err != nil {
				logger.Error("Invalid input type", "input_type", name, "error", err)
				os.Exit(1)
			}
			inputTypes = append(inputTypes, t)
		}

		provider := glutil.NewSoftwareProvider()
		procOpts := processor.Options{
			Provider:        provider,
			InputColor:      types.SDRBT709Limited,
			OutputColor:     types.SRGBBT709Full,
			InputTypes:      inputTypes,
			SurfaceCapacity: opts.PipelineSurfaceCapacity,
			OutputWidth:     opts.PipelineOutputWidth,
			OutputHeight:    opts.PipelineOutputHeight,
			EventBus:        events.New(),
			Logger:          logging.GetLogger("processor"),
		}
		if opts.PipelineHDRInput {
			procOpts.InputColor = types.ColorInfo{
				Space:    types.ColorSpaceBT2020,
				Range:    types.ColorRangeLimited,
				Transfer: types.ColorTransferST2084,
			}
		}
		if opts.PipelineGrayscale {
			procOpts.RGBMatrices = []shader.RGBMatrix{shader.GrayscaleMatrix}
		}

		startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
		proc, err := processor.New(startCtx, procOpts, outputLogger{logger: logging.GetLogger("processor")})
		cancelStart()
		if err != nil {
			logger.Error("Failed to create pipeline", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Pipeline:          proc,
			EventBus:          procOpts.EventBus,
			PrometheusHandler: metrics.Handler(),
		})

		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
		watcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
			logger.Info("Logging levels reloaded", "level", cfg.Level)
		})

		demoCtx, stopDemo := context.WithCancel(context.Background())
		demoDone := make(chan struct{})

		hooks.OnStart(func() {
			if _, statErr := os.Stat(opts.Config); statErr == nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch config file", "path", opts.Config, "error", startErr)
				}
			}

			if opts.DemoEnabled {
				go func() {
					defer close(demoDone)
					runDemo(demoCtx, proc, provider, opts)
				}()
			} else {
				close(demoDone)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			stopDemo()
			<-demoDone
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if releaseErr := proc.Release(ctx); releaseErr != nil {
				logger.Error("Error releasing pipeline", "error", releaseErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateSimulateCmd())
	cli.Run()
}

// runDemo loops a scenario in real time until ctx is cancelled.
func runDemo(ctx context.Context, proc *processor.Processor, provider glutil.ObjectsProvider, opts *Options) {
	logger := logging.GetLogger("demo")

	scenario, err := config.LoadScenario(opts.DemoScenario)
	if err != nil {
		logger.Error("Failed to load demo scenario", "error", err)
		return
	}
	gen, err := source.New(source.Params{Resolution: opts.DemoResolution, FPS: opts.DemoFPS})
	if err != nil {
		logger.Error("Invalid demo source", "error", err)
		return
	}

	steps := make([]source.Step, 0, len(scenario.Steps))
	for _, s := range scenario.Steps {
		t, _ := types.ParseInputType(s.Input)
		steps = append(steps, source.Step{Input: t, Frames: s.Frames, OffsetUs: s.OffsetUs})
	}

	player := source.NewPlayer(gen, proc, source.PlayerOptions{
		Provider: provider,
		Realtime: true,
		Logger:   logger,
		OnStep: func(i int, step source.Step) {
			logger.Info("Demo switching input", "step", i, "input_type", step.Input.String())
		},
	})
	for ctx.Err() == nil {
		if _, playErr := player.Play(ctx, steps); playErr != nil && ctx.Err() == nil {
			logger.Warn("Demo loop failed, retrying", "error", playErr)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}
