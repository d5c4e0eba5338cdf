package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"git.0xdad.com/tblyler/lifespan/config"
	"git.0xdad.com/tblyler/lifespan/logger"
)

// app is shared by every command
type app struct {
	cfg *config.Config
	log *log.Logger
	in  io.Reader
	out io.Writer
}

var cli struct {
	Config string `help:"Path to the YAML config file." type:"path" default:"${config_path}"`
	Debug  bool   `help:"Enable debug logging."`

	Run      RunCmd `cmd:"" help:"Run the reminder scheduler, delivery agent and local server." default:"1"`
	Reminder struct {
		Add    ReminderAddCmd    `cmd:"" help:"Add a medication reminder."`
		List   ReminderListCmd   `cmd:"" help:"List reminders."`
		Update ReminderUpdateCmd `cmd:"" help:"Update a reminder."`
		Remove ReminderRemoveCmd `cmd:"" help:"Remove a reminder."`
		Stats  ReminderStatsCmd  `cmd:"" help:"Show reminder counts."`
	} `cmd:"" help:"Manage medication reminders."`
	Pushover struct {
		SetToken PushoverSetTokenCmd `cmd:"" help:"Store the Pushover API token in the OS keyring."`
	} `cmd:"" help:"Manage the Pushover notifier."`
}

func errLog(messages ...interface{}) {
	fmt.Fprintln(os.Stderr, messages...)
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("lifespan"),
		kong.Description("Medication reminder engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{"config_path": config.DefaultConfigPath},
	)

	err := func() error {
		cfg, err := config.Load(cli.Config)
		if err != nil {
			return err
		}

		if cli.Debug {
			cfg.Log.Debug = true
		}

		l, closer, err := logger.New(logger.Config{
			Debug:      cfg.Log.Debug,
			Dir:        cfg.Log.Dir,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}

		defer closer.Close()

		return ctx.Run(&app{cfg: cfg, log: l, in: os.Stdin, out: os.Stdout})
	}()

	if err != nil {
		errLog(err.Error())
		os.Exit(1)
	}
}
