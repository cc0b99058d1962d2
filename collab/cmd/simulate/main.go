// Package main runs synthetic SLAM agents that walk overlapping paths, each in its own
// coordinate frame, together with the collaborative relocalisation worker that recovers the
// transforms between them.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"go.viam.com/collabslam/collab"
	"go.viam.com/collabslam/config"
	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/slam/fake"
	"go.viam.com/collabslam/spatialmath"
)

const (
	flagConfig  = "config"
	flagAgents  = "agents"
	flagFrames  = "frames"
	flagSeed    = "seed"
	flagMode    = "mode"
	flagStep    = "step"
	flagStagger = "stagger"
	flagSettle  = "settle"
	flagDebug   = "debug"

	flagScheduleEvery = "schedule-every"
)

func main() {
	app := &cli.App{
		Name:  "simulate",
		Usage: "run synthetic agents and align their maps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.IntFlag{
				Name:  flagAgents,
				Value: 2,
				Usage: "number of agents when no config file is given",
			},
			&cli.IntFlag{
				Name:  flagFrames,
				Value: 200,
				Usage: "frames captured by each agent",
			},
			&cli.Int64Flag{
				Name:  flagSeed,
				Value: 1,
				Usage: "seed for the synthetic walk and the candidate generator",
			},
			&cli.StringFlag{
				Name:  flagMode,
				Usage: "collaborative mode, batch or live (overrides the config file)",
			},
			&cli.Float64Flag{
				Name:  flagStep,
				Value: 60,
				Usage: "distance walked between frames in millimetres",
			},
			&cli.IntFlag{
				Name:  flagStagger,
				Value: 20,
				Usage: "frames between the start points of consecutive agents",
			},
			&cli.DurationFlag{
				Name:  flagSettle,
				Value: 10 * time.Second,
				Usage: "how long to wait for alignments once all frames are processed",
			},
			&cli.DurationFlag{
				Name:  flagScheduleEvery,
				Value: 10 * time.Millisecond,
				Usage: "minimum time between scheduling requests from the agents",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: simulateAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	} else {
		numAgents := c.Int(flagAgents)
		if numAgents < 2 {
			return nil, errors.Errorf("need at least two agents, got %d", numAgents)
		}
		cfg = &config.Config{}
		for i := 0; i < numAgents; i++ {
			cfg.Agents = append(cfg.Agents, config.AgentConfig{ID: fmt.Sprintf("agent%d", i)})
		}
	}
	if c.IsSet(flagMode) {
		mode, err := collab.ParseMode(c.String(flagMode))
		if err != nil {
			return nil, err
		}
		cfg.Collaborative.Mode = mode
	}
	if c.Bool(flagDebug) {
		cfg.Logging.Level = logging.DEBUG.String()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, func() error, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	var logger logging.Logger
	if level == logging.DEBUG {
		logger = logging.NewDebugLogger("simulate")
	} else {
		logger = logging.NewLogger("simulate")
		logger.SetLevel(level)
	}
	if cfg.File == "" {
		return logger, logger.Sync, nil
	}
	appender := logging.NewFileAppender(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	logger.AddAppender(appender)
	return logger, func() error {
		return multierr.Combine(logger.Sync(), appender.Close())
	}, nil
}

func simulateAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLogger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLogger())
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runSimulation(ctx, cfg, simulationParams{
		frames:        c.Int(flagFrames),
		seed:          c.Int64(flagSeed),
		step:          c.Float64(flagStep),
		stagger:       c.Int(flagStagger),
		settle:        c.Duration(flagSettle),
		scheduleEvery: c.Duration(flagScheduleEvery),
		out:           c.App.Writer,
	}, logger)
}

type simulationParams struct {
	frames        int
	seed          int64
	step          float64
	stagger       int
	settle        time.Duration
	scheduleEvery time.Duration
	out           io.Writer
}

type agent struct {
	id        string
	component *slam.Component
	// start is the agent's first pose in world coordinates.
	start spatialmath.Pose
}

func runSimulation(ctx context.Context, cfg *config.Config, params simulationParams, logger logging.Logger) (err error) {
	if params.frames <= 0 || params.step <= 0 || params.stagger < 0 || params.scheduleEvery < 0 {
		return errors.New("frames and step must be positive, stagger and schedule interval non-negative")
	}
	if params.out == nil {
		params.out = io.Discard
	}
	deregister := fake.RegisterTrackers(nil)
	defer deregister()

	rng := rand.New(rand.NewSource(params.seed))
	world := fake.RandomWalkTrajectory(params.frames+params.stagger*(len(cfg.Agents)-1), params.step, rng)

	sharedCtx := collab.NewContext()
	clk := clock.New()
	agents := make([]*agent, 0, len(cfg.Agents))
	defer func() {
		for _, a := range agents {
			err = multierr.Combine(err, a.component.Close())
		}
	}()
	for idx, agentCfg := range cfg.Agents {
		segment := world[idx*params.stagger : idx*params.stagger+params.frames]
		start := segment[0]
		local := fake.TransformTrajectory(segment, spatialmath.PoseInverse(start))

		deps := slam.Dependencies{
			VoxelMapper:  &fake.Mapper{},
			SurfelMapper: &fake.Mapper{},
			Relocaliser:  fake.NewRelocaliser(),
		}
		if cfg.Evaluation.Enabled {
			deps.PoseWriter = slam.NewEvaluationPoseWriter(cfg.Evaluation.Dir, clk, logger.Sublogger("evaluation"))
		}
		component, createErr := slam.NewComponent(ctx, sharedCtx, agentCfg.ID, fake.NewImageSource(local),
			agentCfg.SLAM, deps, logger.Sublogger("slam."+agentCfg.ID))
		if createErr != nil {
			return errors.Wrapf(createErr, "cannot create agent %q", agentCfg.ID)
		}
		agents = append(agents, &agent{id: agentCfg.ID, component: component, start: start})
		if err := sharedCtx.AddAgent(agentCfg.ID, component.State(), deps.Relocaliser); err != nil {
			return err
		}
	}

	worker, err := collab.NewComponent(sharedCtx, cfg.Collaborative, nil, rand.New(rand.NewSource(params.seed+1)),
		clk, logger.Sublogger("collab"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, worker.Close())
	}()
	if err := worker.RunCollaborativePoseEstimation(ctx); err != nil {
		return err
	}

	// agents share one budget of scheduling requests
	limiter := rate.NewLimiter(rate.Every(params.scheduleEvery), 1)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, a := range agents {
		a := a
		group.Go(func() error {
			for a.component.ProcessFrame(groupCtx) {
				if limiter.Allow() {
					worker.TryScheduleRelocalisation()
				}
				if err := groupCtx.Err(); err != nil {
					return err
				}
			}
			logger.Infow("agent finished", "agent", a.id, "fused", a.component.FusedFramesCount())
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	settle(ctx, worker, clk, len(agents), params.settle)
	report(params.out, agents, worker, logger)
	return nil
}

// settle keeps the worker busy until every pair of agents is aligned or the timeout expires.
func settle(ctx context.Context, worker *collab.Component, clk clock.Clock, numAgents int, timeout time.Duration) {
	pairs := numAgents * (numAgents - 1) / 2
	deadline := clk.Now().Add(timeout)
	ticker := clk.Ticker(50 * time.Millisecond)
	defer ticker.Stop()
	for len(worker.Results()) < pairs && clk.Now().Before(deadline) {
		worker.TryScheduleRelocalisation()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func report(w io.Writer, agents []*agent, worker *collab.Component, logger logging.Logger) {
	starts := make(map[string]spatialmath.Pose, len(agents))
	for _, a := range agents {
		starts[a.id] = a.start
	}
	results := worker.Results()
	for _, result := range results {
		logger.Infow("aligned agents", "result", result.String())
	}
	fmt.Fprintln(w, resultsTable(starts, results))
	logger.Infow("simulation done", "cycles", worker.Cycles(), "aligned_pairs", len(results))
}

// resultsTable renders each recovered transform next to its error against the transform implied
// by the agents' true start poses.
func resultsTable(starts map[string]spatialmath.Pose, results []collab.Candidate) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Agents", "Confidence", "Recovered", "Expected", "Error (mm)", "Error (rad)"})
	for _, result := range results {
		expected := spatialmath.Compose(spatialmath.PoseInverse(starts[result.AgentA]), starts[result.AgentB])
		translation, rotation := spatialmath.PoseDelta(result.Pose, expected)
		t.AppendRow(table.Row{
			fmt.Sprintf("%s<-%s", result.AgentA, result.AgentB),
			fmt.Sprintf("%.3f", result.Confidence),
			formatPoint(result.Pose),
			formatPoint(expected),
			fmt.Sprintf("%.1f", translation),
			fmt.Sprintf("%.4f", rotation),
		})
	}
	return t.Render()
}

func formatPoint(pose spatialmath.Pose) string {
	pt := pose.Point()
	return fmt.Sprintf("X:%.0f, Y:%.0f, Z:%.0f", pt.X, pt.Y, pt.Z)
}
