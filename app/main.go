package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/litedb/app/persistence"
	"github.com/umputun/litedb/app/students"
)

type options struct {
	DB      string `short:"d" long:"db" env:"LITEDB_DB" default:"students.db" description:"database file"`
	Verbose bool   `short:"v" long:"verbose" env:"LITEDB_VERBOSE" description:"log every sql statement"`
	Dbg     bool   `long:"dbg" env:"DEBUG" description:"debug mode"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"write logs to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"litedb.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size, MB"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max age of rotated files, days"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"LITEDB_LOG"`

	Retry struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"attempts for busy database"`
		Delay    time.Duration `long:"delay" env:"DELAY" default:"100ms" description:"initial delay"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"2" description:"backoff factor"`
	} `group:"retry" namespace:"retry" env-namespace:"LITEDB_RETRY"`

	List struct{} `command:"list" description:"list students"`

	Add struct {
		Args struct {
			Names []string `positional-arg-name:"name" required:"1"`
		} `positional-args:"yes" required:"yes"`
	} `command:"add" description:"add students"`

	Rename struct {
		ID   int64  `long:"id" required:"true" description:"student id"`
		Name string `long:"name" required:"true" description:"new name"`
	} `command:"rename" description:"rename student"`

	Remove struct {
		ID int64 `long:"id" required:"true" description:"student id"`
	} `command:"remove" description:"remove student"`

	Import struct {
		File string `short:"f" long:"file" required:"true" description:"yaml seed file"`
	} `command:"import" description:"import students from yaml file"`

	Reset struct{} `command:"reset" description:"remove all students"`
	Drop  struct{} `command:"drop" description:"delete database file"`
}

var opts options

var revision = "unknown"

func main() {
	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	logOut := setupLogs()
	log.Printf("[DEBUG] litedb %s", revision)

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel)

	if p.Active == nil {
		log.Printf("[ERROR] no command given")
		exit(logOut, 2)
	}
	if err := run(ctx, p.Active.Name, os.Stdout); err != nil {
		log.Printf("[ERROR] %s failed, %v", p.Active.Name, err)
		exit(logOut, 1)
	}
	exit(logOut, 0)
}

// exit flushes and closes the log file, os.Exit skips deferred calls
func exit(logOut io.Writer, code int) {
	if err := closeLogs(logOut); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	os.Exit(code)
}

// run executes the command against students database, results written to out
func run(ctx context.Context, command string, out io.Writer) error {
	retry := persistence.RetryParams{Attempts: opts.Retry.Attempts, Delay: opts.Retry.Delay, Factor: opts.Retry.Factor}
	st, err := students.New(ctx, students.Params{Path: opts.DB, Verbose: opts.Verbose, Retry: retry})
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] using %s", st)

	switch command {
	case "list":
		return st.Print(ctx, out)
	case "add":
		for _, name := range opts.Add.Args.Names {
			id, err := st.Add(ctx, name)
			if err != nil {
				return err
			}
			log.Printf("[INFO] added student %q, id %d", name, id)
		}
		return nil
	case "rename":
		ok, err := st.Rename(ctx, opts.Rename.ID, opts.Rename.Name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("student %d not found", opts.Rename.ID)
		}
		log.Printf("[INFO] renamed student %d to %q", opts.Rename.ID, opts.Rename.Name)
		return nil
	case "remove":
		ok, err := st.Remove(ctx, opts.Remove.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("student %d not found", opts.Remove.ID)
		}
		log.Printf("[INFO] removed student %d", opts.Remove.ID)
		return nil
	case "import":
		n, err := st.Import(ctx, opts.Import.File)
		log.Printf("[INFO] imported %d students from %s", n, opts.Import.File)
		return err
	case "reset":
		n, err := st.Reset(ctx)
		if err != nil {
			return err
		}
		log.Printf("[INFO] removed %d students", n)
		return nil
	case "drop":
		return st.Drop()
	}
	return errors.New("unknown command " + command)
}

// setupLogs configures lgr and returns the log destination, rotated file if log.enabled set
func setupLogs() io.Writer {
	var out io.Writer = os.Stderr
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	logOpts := []log.Option{log.Out(out), log.Err(out), log.Msec}
	if opts.Verbose || opts.Dbg {
		logOpts = append(logOpts, log.Debug)
	}
	if opts.Dbg {
		logOpts = append(logOpts, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return out
}

// closeLogs closes the log destination made by setupLogs. Does nothing for stderr.
func closeLogs(out io.Writer) error {
	lj, ok := out.(*lumberjack.Logger)
	if !ok {
		return nil
	}
	return lj.Close()
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Fprintln(os.Stderr, string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGINT and SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
}
