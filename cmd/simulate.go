package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/videofx/internal/config"
	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/logging"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/processor"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/source"
	"github.com/smazurov/videofx/internal/types"
)

// StepReport is the outcome of one scenario step.
type StepReport struct {
	Input     string `json:"input"`
	OffsetUs  int64  `json:"offset_us"`
	Queued    int    `json:"queued"`
	Delivered int    `json:"delivered"`
}

// InputReport sums the switcher counters of one input type.
type InputReport struct {
	Input            string `json:"input"`
	FramesQueued     uint64 `json:"frames_queued"`
	EventsSuppressed uint64 `json:"events_suppressed"`
	Switches         uint64 `json:"switches"`
}

// Report is the outcome of a simulation.
type Report struct {
	Steps  []StepReport  `json:"steps"`
	Inputs []InputReport `json:"inputs"`
	Errors []string      `json:"errors,omitempty"`
}

// stepCounter attributes output frames to the step that is playing.
type stepCounter struct {
	current atomic.Int32
	mu      sync.Mutex
	counts  map[int32]int
	errs    []error
}

func (c *stepCounter) OnOutputFrameAvailable(shader.OutputFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[c.current.Load()]++
}

func (c *stepCounter) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *stepCounter) OnEnded() {}

// RunSimulation plays scenario through a software pipeline. With settle
// the pipeline drains before every switch; without it frames still in
// flight at a switch are dropped by the switcher.
func RunSimulation(ctx context.Context, scenario *config.Scenario, settle bool) (*Report, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	gen, err := source.New(source.Params{Resolution: scenario.Source.Resolution, FPS: scenario.Source.FPS})
	if err != nil {
		return nil, err
	}

	metrics.Reset()
	counter := &stepCounter{counts: make(map[int32]int)}
	provider := glutil.NewSoftwareProvider()
	proc, err := processor.New(ctx, processor.Options{
		InputColor:     types.SDRBT709Limited,
		OutputColor:    types.SRGBBT709Full,
		Provider:       provider,
		ListenerRunner: executor.Inline,
		Logger:         logging.GetLogger("processor"),
	}, counter)
	if err != nil {
		return nil, err
	}

	steps := make([]source.Step, len(scenario.Steps))
	for i, s := range scenario.Steps {
		inputType, _ := types.ParseInputType(s.Input)
		steps[i] = source.Step{Input: inputType, Frames: s.Frames, OffsetUs: s.OffsetUs}
	}

	player := source.NewPlayer(gen, proc, source.PlayerOptions{
		Provider: provider,
		Settle:   settle,
		OnStep:   func(i int, _ source.Step) { counter.current.Store(int32(i)) },
		Logger:   logging.GetLogger("source"),
	})
	results, playErr := player.Play(ctx, steps)
	if playErr == nil {
		playErr = proc.WaitIdle(ctx)
	}
	releaseErr := proc.Release(ctx)

	report := &Report{}
	counter.mu.Lock()
	for i, r := range results {
		report.Steps = append(report.Steps, StepReport{
			Input:     r.Step.Input.String(),
			OffsetUs:  r.Step.OffsetUs,
			Queued:    r.Queued,
			Delivered: counter.counts[int32(i)],
		})
	}
	for _, e := range counter.errs {
		report.Errors = append(report.Errors, e.Error())
	}
	counter.mu.Unlock()

	for _, t := range types.AllInputTypes {
		m := metrics.GetInputMetrics(t.String())
		if m == nil {
			continue
		}
		report.Inputs = append(report.Inputs, InputReport{
			Input:            t.String(),
			FramesQueued:     m.FramesQueued,
			EventsSuppressed: m.EventsSuppressed,
			Switches:         m.Switches,
		})
	}
	return report, errors.Join(playErr, releaseErr)
}

// WriteReport prints report as two tables.
func WriteReport(w io.Writer, report *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tINPUT\tOFFSET_US\tQUEUED\tDELIVERED")
	for i, s := range report.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", i, s.Input, s.OffsetUs, s.Queued, s.Delivered)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "INPUT\tQUEUED\tSUPPRESSED\tSWITCHES")
	for _, in := range report.Inputs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", in.Input, in.FramesQueued, in.EventsSuppressed, in.Switches)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(tw, "error: %s\n", e)
	}
	return tw.Flush()
}

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	var scenarioFile string
	var writeDefault string
	var noSettle bool
	var logJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted input switch sequence",
		Long: `Plays a generated test pattern through a software pipeline, switching inputs as listed ` +
			`in a scenario file, and prints per-step delivered frame counts and per-input switcher counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{Level: "warn", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)

			if writeDefault != "" {
				if err := config.DefaultScenario().Save(writeDefault); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote default scenario to %s\n", writeDefault)
				return nil
			}

			scenario, err := config.LoadScenario(scenarioFile)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			report, runErr := RunSimulation(ctx, scenario, !noSettle)
			if report != nil {
				if err := WriteReport(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&scenarioFile, "scenario", "s", "", "Scenario TOML file (default: built-in scenario)")
	cmd.Flags().StringVar(&writeDefault, "write-default", "", "Write the built-in scenario to this file and exit")
	cmd.Flags().BoolVar(&noSettle, "no-settle", false, "Switch without waiting for the previous input to drain")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Abort the simulation after this long")
	return cmd
}
