package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/docker/go-units"

	"bfjit/pkg/bf"
	"bfjit/pkg/codecache"
	"bfjit/pkg/engine"
	"bfjit/pkg/jit"
	"bfjit/pkg/tape"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON or TOML configuration file")
	inline := flag.String("e", "", "Program source given on the command line")
	tapeSize := flag.String("tape", "", "Tape size in cells, e.g. 30000 or 64KiB")
	mode := flag.String("mode", "", "Execution mode: jit or interpreter")
	strict := flag.Bool("strict", false, "Reject comments and unmatched ']'")
	cacheDir := flag.String("cache-dir", "", "Directory of the generated code cache")
	cacheClear := flag.Bool("cache-clear", false, "Empty the code cache before running")
	dumpPath := flag.String("dump", "", "Write the generated machine code to this file")
	repl := flag.Bool("repl", false, "Read programs interactively")
	verbose := flag.Bool("v", false, "Log compilation and cache details")

	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("bfjit: ")

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath, cfg)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Flags given explicitly win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tape":
			cfg.Tape = *tapeSize
		case "mode":
			cfg.Mode = *mode
		case "strict":
			cfg.Strict = *strict
		case "cache-dir":
			cfg.CacheDir = *cacheDir
		}
	})

	cells, err := cfg.TapeCells()
	if err != nil {
		log.Fatal(err)
	}
	execMode, err := cfg.ExecutionMode()
	if err != nil {
		log.Fatal(err)
	}

	opts := engine.Options{Mode: execMode, Strict: cfg.Strict}
	if cfg.CacheDir != "" {
		cache, err := codecache.Open(cfg.CacheDir)
		if err != nil {
			log.Fatalf("Failed to open code cache: %v", err)
		}
		defer cache.Close()
		if *cacheClear {
			if err := cache.Clear(); err != nil {
				log.Fatalf("Failed to clear code cache: %v", err)
			}
		}
		opts.Cache = cache
	}

	if *verbose {
		log.Printf("mode %v, tape %d cells (%s), strict %v", execMode, cells, units.BytesSize(float64(cells)), cfg.Strict)
	}

	if *repl {
		if err := runRepl(opts, cells, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	source, err := readSource(*inline, flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	if *dumpPath != "" {
		code, err := jit.Generate(source, jit.GenerateOptions{Strict: cfg.Strict})
		if err != nil {
			log.Fatalf("Failed to generate code: %v", err)
		}
		if err := os.WriteFile(*dumpPath, code, 0o644); err != nil {
			log.Fatalf("Failed to write dump: %v", err)
		}
		if *verbose {
			log.Printf("wrote %d bytes of code to %s", len(code), *dumpPath)
		}
	}

	exit, err := run(source, opts, cells, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if *verbose && opts.Cache != nil {
		stats := opts.Cache.Stats()
		log.Printf("code cache: %d hits, %d misses", stats.Hits, stats.Misses)
	}
	if exit.Reason == bf.ExitWriteFailed || exit.Reason == bf.ExitReadFailed {
		log.Printf("program stopped: %v: %v", exit.Reason, exit.Err)
		os.Exit(1)
	}
}

// readSource takes the program from -e, or else from the single file argument
func readSource(inline string, args []string) (string, error) {
	switch {
	case inline != "" && len(args) > 0:
		return "", fmt.Errorf("give either -e or a file, not both")
	case inline != "":
		return inline, nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	case len(args) == 0:
		return "", fmt.Errorf("no program: give a file, -e or -repl")
	}
	return "", fmt.Errorf("expected one program file, got %d", len(args))
}

// run compiles source and executes it once on a fresh tape
func run(source string, opts engine.Options, cells int, in io.Reader, out io.Writer) (bf.Exit, error) {
	prog, err := engine.Compile(source, opts)
	if err != nil {
		return bf.Exit{}, err
	}
	defer prog.Close()

	t, err := tape.New(cells)
	if err != nil {
		return bf.Exit{}, err
	}
	defer t.Free()

	w := bufio.NewWriter(out)
	exit, err := prog.Run(t.Cells(), w, newFlushingReader(in, w))
	if flushErr := w.Flush(); err == nil && flushErr != nil && exit.Reason != bf.ExitWriteFailed {
		exit = bf.Exit{Reason: bf.ExitWriteFailed, Err: flushErr}
	}
	return exit, err
}
