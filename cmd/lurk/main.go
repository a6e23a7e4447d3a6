// Lurk CLI - evaluate programs, record their traces and serve evaluation
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/lurk/config"
	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/persist"
	"github.com/chazu/lurk/repl"
	"github.com/chazu/lurk/server"
	"github.com/chazu/lurk/store"
)

var log = commonlog.GetLogger("lurk")

type options struct {
	expr        string
	interactive bool
	limit       int
	fieldName   string
	tracePath   string
	chunk       int
	snapshot    string
	dbPath      string
	stats       bool
	watch       bool
	serve       bool
	addr        string
	remote      string
	verbose     bool
}

func main() {
	var o options
	configDir := flag.String("config", "", "Directory containing lurk.toml (default: search upward from the working directory)")
	flag.StringVar(&o.expr, "e", "", "Evaluate an expression")
	flag.BoolVar(&o.interactive, "i", false, "Start interactive REPL")
	flag.IntVar(&o.limit, "limit", 0, "Maximum frames per run (default from config)")
	flag.StringVar(&o.fieldName, "field", "", "Scalar field: bls12-381 or bn254 (default from config)")
	flag.StringVar(&o.tracePath, "trace", "", "Write the last run's trace bundle to this file")
	flag.IntVar(&o.chunk, "chunk", -1, "Pad the written trace to a multiple of this many frames (default from config, 0 disables)")
	flag.StringVar(&o.snapshot, "snapshot", "", "Write a store snapshot to this file on exit")
	flag.StringVar(&o.dbPath, "db", "", "Persist runs and the store to this database")
	flag.BoolVar(&o.stats, "stats", false, "Print store statistics on exit")
	flag.BoolVar(&o.watch, "watch", false, "Re-evaluate the given files when they change")
	flag.BoolVar(&o.serve, "serve", false, "Start the evaluation server")
	flag.StringVar(&o.addr, "addr", "", "Server address (default from config)")
	flag.StringVar(&o.remote, "remote", "", "Evaluate -e on the server at host:port over gRPC")
	flag.BoolVar(&o.verbose, "v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lurk [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Evaluates Lurk expressions and files, starting a REPL when nothing else is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lurk                              # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  lurk -e '(+ 1 2)'                 # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  lurk -trace out.cbor prog.lurk    # Record the last run's frames\n")
		fmt.Fprintf(os.Stderr, "  lurk -watch prog.lurk             # Re-run on every save\n")
		fmt.Fprintf(os.Stderr, "  lurk -serve -addr :8421           # Start the evaluation server\n")
		fmt.Fprintf(os.Stderr, "  lurk -remote localhost:8421 -e 1  # Evaluate on a server\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir, &o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ConfigureLogging()

	if err := run(cfg, &o, flag.Args()); err != nil {
		if errors.Is(err, repl.ErrQuit) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig finds lurk.toml and applies command line overrides.
func loadConfig(dir string, o *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if dir != "" {
		cfg, err = config.Load(dir)
	} else {
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		cfg, err = config.FindAndLoad(wd)
	}
	if err != nil {
		return nil, err
	}

	if o.limit > 0 {
		cfg.Eval.IterationLimit = o.limit
	}
	if o.fieldName != "" {
		cfg.Field.Name = o.fieldName
	}
	if o.chunk >= 0 {
		cfg.Trace.ChunkSize = o.chunk
	}
	if o.tracePath != "" {
		cfg.Trace.Output = o.tracePath
	}
	if o.dbPath != "" {
		cfg.Storage.Path = o.dbPath
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.verbose && cfg.Log.Verbosity < 5 {
		cfg.Log.Verbosity = 5
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(cfg *config.Config) (*persist.DB, error) {
	if cfg.Storage.Path == "" {
		return nil, nil
	}
	return persist.Open(cfg.Storage.Driver, cfg.Storage.Path)
}

func run(cfg *config.Config, o *options, files []string) error {
	if o.remote != "" {
		return runRemote(o.remote, o.expr, cfg.Eval.IterationLimit)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if o.serve {
		f, err := cfg.NewField()
		if err != nil {
			return err
		}
		srv := server.New(
			server.WithField(f),
			server.WithLimit(cfg.Eval.IterationLimit),
			server.WithMaxSessions(cfg.Server.MaxSessions),
			server.WithDB(db),
		)
		defer srv.Stop()
		return srv.ListenAndServe(cfg.Server.Addr)
	}

	s, err := cfg.NewStore()
	if err != nil {
		return err
	}
	if db != nil {
		n, err := db.LoadStore(s)
		if err != nil {
			return err
		}
		log.Infof("loaded %d entries from %s", n, cfg.Storage.Path)
	}

	session := repl.New(s, cfg.Eval.IterationLimit, os.Stdout)
	var last *eval.Trace
	session.OnRun = func(t *eval.Trace) {
		last = t
		if db != nil {
			if _, err := db.SaveTrace(s, t); err != nil {
				log.Errorf("persisting run: %s", err)
			}
		}
	}

	defer func() {
		if err := finish(cfg, o, s, last); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}()

	for _, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := session.LoadFile(abs); err != nil {
			return err
		}
	}
	if o.expr != "" {
		if err := session.HandleSource(o.expr); err != nil {
			return err
		}
	}

	if o.watch {
		if len(files) == 0 {
			return errors.New("-watch needs at least one file")
		}
		return watchFiles(session, files)
	}

	if o.interactive || (len(files) == 0 && o.expr == "") {
		history := ""
		if home, err := os.UserHomeDir(); err == nil {
			history = filepath.Join(home, ".lurk-history")
		}
		return session.Interactive(history)
	}
	return nil
}

// finish writes the requested outputs after evaluation.
func finish(cfg *config.Config, o *options, s *store.Store, last *eval.Trace) error {
	if cfg.Trace.Output != "" {
		if last == nil {
			return errors.New("no run to write a trace for")
		}
		if err := writeTrace(cfg.Trace.Output, s, last, cfg.Trace.ChunkSize); err != nil {
			return err
		}
	}
	if o.snapshot != "" {
		if err := writeSnapshot(o.snapshot, s); err != nil {
			return err
		}
	}
	if o.stats {
		return printStats(os.Stdout, s)
	}
	return nil
}
