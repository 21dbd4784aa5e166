package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"modschedule/internal/block"
	"modschedule/internal/catalog"
	"modschedule/internal/config"
	"modschedule/internal/export"
	appLog "modschedule/internal/log"
	"modschedule/internal/model"
	"modschedule/internal/search"
	"modschedule/internal/web"
)

const (
	exitNotFound = 1
	exitInvalid  = 2
)

func main() {
	app := cli.App{
		Name:      "modschedule",
		HelpName:  "modschedule",
		Usage:     "finds a random clash-free timetable for the given courses",
		Version:   "v0.1.0",
		UsageText: "modschedule [options] CODE...\n   modschedule [options] serve [--listen addr]",
		Flags:     globalFlags,
		Action:    findTimetable,
		Commands: []cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the timetable API over HTTP",
				Flags:  serveFlags,
				Action: serve,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		appLog.Error("modschedule failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	conf, err := config.Load(path)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, err
	}

	if ctx.GlobalIsSet("year") {
		conf.AcademicYear = year
	}
	if semester != "" {
		conf.Semester = semester
	}
	if ctx.GlobalIsSet("max-steps") {
		conf.MaxSteps = maxSteps
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	if listen != "" {
		conf.Listen = listen
	}
	conf.Normalize()

	if err := appLog.Configure(conf.LogLevel, conf.LogFormat); err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"config_path", path,
		"academic_year", conf.AcademicYear,
		"semester", conf.Semester,
		"cache_dir", conf.CacheDir,
		"cache_ttl_minutes", conf.CacheTTLMinutes,
		"fetch_concurrency", conf.FetchConcurrency,
		"timezone", conf.Timezone,
		"max_steps", conf.MaxSteps,
		"listen", conf.Listen,
	)
	return conf, nil
}

func newFetcher(conf *config.Config) *catalog.Fetcher {
	return catalog.NewFetcher(catalog.FetcherConfig{
		URL:          conf.ScheduleURL,
		CacheDir:     conf.CacheDir,
		TTL:          conf.CacheTTL(),
		Concurrency:  conf.FetchConcurrency,
		DefaultWeeks: conf.DefaultTeachingWeeks,
	})
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func findTimetable(ctx *cli.Context) error {
	codes := catalog.NormalizeCodes(ctx.Args())
	if len(codes) == 0 {
		cli.ShowAppHelp(ctx)
		return cli.NewExitError("no course codes given", exitInvalid)
	}

	conf, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}

	var seedPtr *int64
	if ctx.GlobalIsSet("seed") {
		seedPtr = &seed
	}

	rctx, cancel := signalContext()
	defer cancel()

	req := runRequest{
		codes:     codes,
		blockPath: blockPath,
		icsPath:   icsPath,
		seed:      seedPtr,
	}
	return run(rctx, conf, newFetcher(conf), req, os.Stdin, os.Stdout)
}

type runRequest struct {
	codes     []string
	blockPath string
	icsPath   string
	seed      *int64
}

// run fetches the courses, searches a timetable and prints it. Errors carry
// the process exit status.
func run(ctx context.Context, conf *config.Config, source web.CourseSource, req runRequest, stdin io.Reader, stdout io.Writer) error {
	req.codes = catalog.NormalizeCodes(req.codes)
	if len(req.codes) == 0 {
		return cli.NewExitError("no course codes given", exitInvalid)
	}

	blocks, err := readBlocks(req.blockPath, conf.DefaultTeachingWeeks, stdin)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}

	courses, err := source.FetchAll(ctx, conf.AcademicYear, conf.Semester, req.codes)
	if err != nil {
		if errors.Is(err, catalog.ErrNotAvailable) || model.IsInvalid(err) {
			return cli.NewExitError(err.Error(), exitInvalid)
		}
		return cli.NewExitError(err.Error(), 1)
	}

	res, ok, err := search.FindSchedule(ctx, courses, blocks, search.Options{Seed: req.seed, MaxSteps: conf.MaxSteps})
	switch {
	case model.IsInvalid(err):
		return cli.NewExitError(err.Error(), exitInvalid)
	case err != nil:
		return cli.NewExitError(fmt.Sprintf("search stopped after %d steps (seed %d): %v", res.Steps, res.Seed, err), exitNotFound)
	case !ok:
		return cli.NewExitError("No timetable found", exitNotFound)
	}

	fmt.Fprintln(stdout, "Found timetable:")
	if err := export.WriteJSON(stdout, res.Assignment); err != nil {
		return err
	}
	appLog.Info("timetable found", "seed", res.Seed, "steps", res.Steps)

	if req.icsPath != "" {
		if err := writeICSFile(conf, req.icsPath, courses, res.Assignment); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		appLog.Info("calendar written", "path", req.icsPath)
	}
	return nil
}

func readBlocks(path string, defaultWeeks []int, stdin io.Reader) ([]model.Block, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return block.Parse(stdin, defaultWeeks)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return block.Parse(f, defaultWeeks)
}

func writeICSFile(conf *config.Config, path string, courses []model.Course, a model.Assignment) error {
	start, err := conf.TermStartTime()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cal := export.Calendar{TermStart: start, RecessAfterWeek: conf.RecessAfterWeek}
	if err := export.WriteICS(f, cal, courses, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func serve(ctx *cli.Context) error {
	conf, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), exitInvalid)
	}

	rctx, cancel := signalContext()
	defer cancel()

	s := web.NewServer(conf, newFetcher(conf))
	if err := s.Run(rctx); err != nil {
		return err
	}
	appLog.Info("modschedule exiting")
	return nil
}
