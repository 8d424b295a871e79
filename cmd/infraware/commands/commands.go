package commands

import (
	"context"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/conventions"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	ledgerSQLite   = "sqlite"
	ledgerPostgres = "postgres"

	engineLocal  = "local"
	engineRemote = "remote"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug         bool
	NoLog         bool
	NoColor       bool
	LoggerType    string
	DBPath        string
	Ledger        string
	PostgresDSN   string
	ArtifactsDir  string
	Engine        string
	EngineURL     string
	EngineTimeout time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	dataDir := conventions.DataDir()
	app.Flag("db-path", "Path to the SQLite database file.").Default(conventions.DBPath(dataDir)).StringVar(&c.DBPath)
	app.Flag("ledger", "Job ledger backend (sqlite, postgres).").Default(ledgerSQLite).EnumVar(&c.Ledger, ledgerSQLite, ledgerPostgres)
	app.Flag("postgres-dsn", "Postgres connection string, required with the postgres ledger.").StringVar(&c.PostgresDSN)
	app.Flag("artifacts-dir", "Directory where the generated artifacts are stored.").Default(conventions.ArtifactsPath(dataDir)).StringVar(&c.ArtifactsDir)
	app.Flag("engine", "Generation engine (local, remote).").Default(engineLocal).EnumVar(&c.Engine, engineLocal, engineRemote)
	app.Flag("engine-url", "Generation service URL, required with the remote engine.").StringVar(&c.EngineURL)
	app.Flag("engine-timeout", "Max duration of a generation engine call.").Default("5m").DurationVar(&c.EngineTimeout)

	return c
}

func (r RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

func formatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(format, formatTable, formatJSON)
}
