package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"PlantDex/internal/di"
	"PlantDex/internal/usecase"
	"PlantDex/pkg/config"
	applogger "PlantDex/pkg/logger"
	"PlantDex/pkg/queue"
	"PlantDex/pkg/util"
)

func main() {
	app := &cli.App{
		Name:  "plantdex",
		Usage: "plant marketplace intelligence engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/config.yaml",
				Usage:   "config file path",
				EnvVars: []string{"PLANTDEX_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			aggregateCommand(),
			indexCommand(),
			scoreCommand(),
			forecastCommand(),
			detectCommand(),
			cycleCommand(),
			scheduleCommand(),
			enqueueCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("plantdex: %v", err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

// withEngine wires the engine, runs fn and releases every resource afterwards.
func withEngine(c *cli.Context, fn func(ctx context.Context, e *di.Engine) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine, cleanup, err := di.InitializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, engine)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func itemFlag() cli.Flag {
	return &cli.Int64Flag{Name: "item", Usage: "item id (0 = every catalog item where supported)"}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{Name: "date", Usage: "bucket date YYYY-MM-DD (default today, UTC)"}
}

func dateArg(c *cli.Context) (time.Time, error) {
	s := c.String("date")
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := util.ParseDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP query API with the configured ingest and triggers",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log.Printf("env=%s store=%s backend=%s", cfg.Environment, cfg.Store.Type, cfg.Backend.Type)

			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()

			// Run application (blocks until signal)
			return app.Run()
		},
	}
}

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "build daily aggregates for one item or every item",
		Flags: []cli.Flag{itemFlag(), dateFlag()},
		Action: func(c *cli.Context) error {
			date, err := dateArg(c)
			if err != nil {
				return err
			}
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				if id := c.Int64("item"); id > 0 {
					agg, err := e.Compute.Aggregate(ctx, id, date)
					if err != nil {
						return err
					}
					return printJSON(agg)
				}
				aggs, err := e.Compute.AggregateDay(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(aggs)
			})
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "compute the market index point of a date",
		Flags: []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			date, err := dateArg(c)
			if err != nil {
				return err
			}
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				p, err := e.Compute.Index(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "recompute the investment score of one item or every item",
		Flags: []cli.Flag{itemFlag()},
		Action: func(c *cli.Context) error {
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				if id := c.Int64("item"); id > 0 {
					s, err := e.Compute.Score(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(s)
				}
				all, err := e.Compute.ScoreAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(all)
			})
		},
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "project weekly demand for an item",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "item", Usage: "item id", Required: true},
			&cli.IntFlag{Name: "weeks", Value: 4, Usage: "weeks ahead"},
		},
		Action: func(c *cli.Context) error {
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				f, err := e.Query.GetForecast(ctx, c.Int64("item"), c.Int("weeks"))
				if err != nil {
					return err
				}
				return printJSON(f)
			})
		},
	}
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "scan the catalog for opportunities",
		Flags: []cli.Flag{
			&cli.TimestampFlag{Name: "as-of", Layout: time.RFC3339, Usage: "detection time (default now)"},
		},
		Action: func(c *cli.Context) error {
			var asOf time.Time
			if t := c.Timestamp("as-of"); t != nil {
				asOf = t.UTC()
			}
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				opps, err := e.Compute.Detect(ctx, asOf)
				if err != nil {
					return err
				}
				return printJSON(opps)
			})
		},
	}
}

func cycleCommand() *cli.Command {
	return &cli.Command{
		Name:  "cycle",
		Usage: "run aggregate, index, score and detect for a date",
		Flags: []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			date, err := dateArg(c)
			if err != nil {
				return err
			}
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				res, err := e.Compute.RunCycle(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "trigger the daily cycle on scheduler.cycle_spec until interrupted",
		Action: func(c *cli.Context) error {
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				runner, err := di.NewCycleScheduler(ctx, e.Config, e.Logger, e.Compute, e.Jobs)
				if err != nil {
					return err
				}
				runner.Start()
				e.Logger.Info("schedule running",
					applogger.String("spec", e.Config.Scheduler.CycleSpec),
					applogger.Bool("queued", e.Jobs != nil),
				)
				<-ctx.Done()
				runner.Stop()
				return nil
			})
		},
	}
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "push a recompute job to the Redis job queue",
		ArgsUsage: "<aggregate|index|score|detect|cycle>",
		Flags:     []cli.Flag{itemFlag(), dateFlag()},
		Action: func(c *cli.Context) error {
			jobType := "recompute." + c.Args().First()
			if !usecase.IsRecomputeJobType(jobType) {
				return fmt.Errorf("unknown job %q", c.Args().First())
			}
			if _, err := dateArg(c); err != nil {
				return err
			}
			return withEngine(c, func(ctx context.Context, e *di.Engine) error {
				if e.Jobs == nil {
					return fmt.Errorf("job queue disabled: set queue.enabled and redis.enabled")
				}
				payload := usecase.RecomputePayload{ItemID: c.Int64("item"), Date: c.String("date")}
				err := e.Jobs.Enqueue(ctx, jobType, payload)
				if errors.Is(err, queue.ErrDuplicate) {
					e.Logger.Warn("identical job already queued", applogger.String("type", jobType))
					return nil
				}
				if err != nil {
					return err
				}
				e.Logger.Info("job enqueued",
					applogger.String("type", jobType),
					applogger.Int64("item_id", payload.ItemID),
				)
				return nil
			})
		},
	}
}
