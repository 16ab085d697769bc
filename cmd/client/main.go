package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/tuannm99/sqlfan/internal"
	"github.com/tuannm99/sqlfan/internal/history"
	"github.com/tuannm99/sqlfan/sqlclient"
)

const (
	prompt     = "sqlfan> "
	contPrompt = "...> "
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "config file (yaml)")
		addr       = flag.String("addr", "", "server address; empty runs queries in-process")
		timeout    = flag.Duration("timeout", 3*time.Second, "dial timeout")
		targets    = flag.String("targets", "", "comma separated target databases")
		oneShotSQL = flag.String("c", "", "execute one query block and exit")
		file       = flag.String("f", "", "execute the query block in file and exit")
		yes        = flag.Bool("yes", false, "do not ask before destructive statements")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := internal.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var be backend
	if *addr != "" {
		cli, err := sqlclient.DialContext(ctx, *addr, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial: %v\n", err)
			os.Exit(1)
		}
		be = cli
	} else {
		local, err := newLocalBackend(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init: %v\n", err)
			os.Exit(1)
		}
		be = local
	}
	defer func() { _ = be.Close() }()

	h := history.New(history.ExpandPath(cfg.History.Path), cfg.History.Max)
	if err := h.Load(); err != nil {
		logger.Warn("history not loaded", "err", err)
	}

	s := &session{
		be:      be,
		hist:    h,
		out:     os.Stdout,
		targets: parseTargets(*targets),
	}

	// one-shot mode
	query := *oneShotSQL
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
			os.Exit(1)
		}
		query = string(b)
	}
	if strings.TrimSpace(query) != "" {
		if !*yes {
			s.confirm = func(string) bool {
				fmt.Fprintln(os.Stderr, "refusing destructive statements without -yes")
				return false
			}
		}
		if err := s.submit(ctx, query); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	// preload history into readline (so ↑ works immediately)
	for _, e := range h.Entries() {
		_ = rl.SaveHistory(history.OneLine(e.Query))
	}

	if !*yes {
		s.confirm = func(p string) bool {
			rl.SetPrompt(p)
			defer rl.SetPrompt(prompt)
			answer, err := rl.Readline()
			if err != nil {
				return false
			}
			answer = strings.ToLower(strings.TrimSpace(answer))
			return answer == "y" || answer == "yes"
		}
	}

	if *addr != "" {
		fmt.Printf("connected to %s\n", *addr)
	}
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			// Ctrl+C clears current buffer
			if s.buffered() {
				s.reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return
		}

		if s.line(ctx, line) {
			return
		}
		if s.buffered() {
			rl.SetPrompt(contPrompt)
		} else {
			rl.SetPrompt(prompt)
		}
	}
}
