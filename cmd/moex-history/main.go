// Command moex-history downloads MOEX ISS trading history for a selection of
// shares into a CSV file or a database table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Sternrassler/moex-iss-client/internal/config"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Flags override values from the config file and environment.
type Flags struct {
	Config string

	From         string
	Till         string
	ListLevel    int
	SecIDs       string // comma-separated
	PrimaryBoard bool

	Out     string // file sink path
	Dir     string // file sink directory for generated names
	Table   string
	DSN     string
	Dialect string

	List    bool // print the selection and exit
	Verbose int
	Pretty  bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("moex-history", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&flags.Config, "config", "", "config file (yaml, toml or json)")
	fs.StringVar(&flags.From, "from", "", "first trading date, YYYY-MM-DD")
	fs.StringVar(&flags.Till, "till", "", "last trading date, YYYY-MM-DD")
	fs.IntVar(&flags.ListLevel, "level", 0, "listing level 1..3")
	fs.StringVar(&flags.SecIDs, "secids", "", "comma-separated security ids")
	fs.BoolVar(&flags.PrimaryBoard, "primary-board", false, "primary board only")
	fs.StringVar(&flags.Out, "out", "", "output CSV file")
	fs.StringVar(&flags.Dir, "dir", "", "directory for a generated output file")
	fs.StringVar(&flags.Table, "table", "", "write into this database table instead of a file")
	fs.StringVar(&flags.DSN, "dsn", "", "database DSN for -table")
	fs.StringVar(&flags.Dialect, "dialect", "", "database dialect for -table: postgres or sqlite")
	fs.BoolVar(&flags.List, "list", false, "print the selected instruments and exit")
	fs.IntVar(&flags.Verbose, "v", 0, "verbosity; 1 enables debug logging")
	fs.BoolVar(&flags.Pretty, "pretty", false, "human-readable logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if flags.Out != "" && flags.Table != "" {
		return nil, fmt.Errorf("-out and -table are mutually exclusive")
	}

	flags.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { flags.set[f.Name] = true })
	return &flags, nil
}

// apply copies the flags given on the command line into cfg.
func (f *Flags) apply(cfg *config.Config) {
	if f.set["from"] {
		cfg.History.From = f.From
	}
	if f.set["till"] {
		cfg.History.Till = f.Till
	}
	if f.set["level"] {
		cfg.History.ListLevel = f.ListLevel
	}
	if f.set["secids"] {
		var ids []string
		for _, id := range strings.Split(f.SecIDs, ",") {
			if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.History.SecIDs = ids
	}
	if f.set["primary-board"] {
		cfg.History.PrimaryBoard = f.PrimaryBoard
	}
	if f.set["out"] {
		cfg.Sink.Kind = "file"
		cfg.Sink.Path = f.Out
	}
	if f.set["dir"] {
		cfg.Sink.Dir = f.Dir
	}
	if f.set["table"] {
		cfg.Sink.Kind = "table"
		cfg.Sink.Table = f.Table
	}
	if f.set["dsn"] {
		cfg.Sink.DSN = f.DSN
	}
	if f.set["dialect"] {
		cfg.Sink.Dialect = strings.ToLower(f.Dialect)
	}
	if f.set["v"] {
		cfg.Passport.Debug = f.Verbose
	}
	if f.set["pretty"] {
		cfg.Log.Pretty = f.Pretty
	}
}

// errPartial reports a run in which some instruments failed.
var errPartial = errors.New("some instruments failed")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	lc := cfg.Logging()
	lc.Output = stderr
	logger := logging.Setup(lc)

	iss, closeClient, err := cfg.NewClient(ctx, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer closeClient()

	selected, err := iss.SelectInstruments(ctx, cfg.Selection())
	if err != nil {
		return fmt.Errorf("select instruments: %w", err)
	}

	if flags.List {
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SECID\tTYPE\tLEVEL\tNAME")
		for _, in := range selected.Sorted() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", in.SecID, in.SecType, in.ListLevel, in.ShortName)
		}
		return tw.Flush()
	}

	req, err := cfg.HistoryRequest(selected.SecIDs())
	if err != nil {
		return err
	}

	out, closeSink, err := cfg.OpenSink(logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	stats, streamErr := iss.StreamHistory(ctx, req, out)
	if err := closeSink(); err != nil {
		logger.Error().Err(err).Msg("Failed to close sink")
		if streamErr == nil {
			streamErr = err
		}
	}

	if stats != nil {
		logEvent := logger.Info()
		if stats.Failed > 0 {
			logEvent = logger.Warn()
		}
		logEvent.
			Int("instruments", len(stats.Instruments)).
			Int("failed", stats.Failed).
			Int("rows", stats.Rows).
			Str("sink", string(out.Kind())).
			Msg("Download finished")

		if streamErr != nil && stats.Failed > 0 && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", errPartial, streamErr)
		}
	}
	return streamErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		errLogger := zerolog.New(os.Stderr)
		errLogger.Error().Err(err).Msg("moex-history failed")
		stop()
		os.Exit(1)
	}
}
