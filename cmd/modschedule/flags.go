package main

import "github.com/urfave/cli"

var (
	configPath string
	year       int
	semester   string
	blockPath  string
	seed       int64
	maxSteps   int
	icsPath    string
	logLevel   string
	listen     string
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the YAML config file (created with defaults if missing)",
		EnvVar:      "MODSCHEDULE_CONFIG",
		Destination: &configPath,
	},
	cli.IntFlag{
		Name:        "year, y",
		Usage:       "academic year to retrieve course indexes for",
		Destination: &year,
	},
	cli.StringFlag{
		Name:        "semester, s",
		Usage:       "academic semester to retrieve course indexes for",
		Destination: &semester,
	},
	cli.StringFlag{
		Name: "block, b",
		Usage: `block CSV file ("-" for stdin) with columns begin,end,duration,weekday,teachingWeek:
	begin/end in HHMM (end exclusive); duration in seconds, only that much of
	the window is kept free; weekday as MON..SUN; teachingWeek a week number.
	duration, weekday and teachingWeek are optional`,
		Destination: &blockPath,
	},
	cli.Int64Flag{
		Name:        "seed",
		Usage:       "seed for the exploration order; the same seed gives the same timetable",
		Destination: &seed,
	},
	cli.IntFlag{
		Name:        "max-steps",
		Usage:       "give up after this many index placements (0: no limit)",
		Destination: &maxSteps,
	},
	cli.StringFlag{
		Name:        "ics",
		Usage:       "also write the timetable as an iCalendar file (needs term_start in config)",
		Destination: &icsPath,
	},
	cli.StringFlag{
		Name:        "log-level",
		Usage:       "debug, info or error",
		EnvVar:      "MODSCHEDULE_LOG_LEVEL",
		Destination: &logLevel,
	},
}

var serveFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "listen, l",
		Usage:       "HTTP listen address (overrides config if set)",
		Destination: &listen,
	},
}
