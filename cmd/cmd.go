package cmd

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prdiff/prdiff/internal/app"
	"github.com/prdiff/prdiff/internal/buildinfo"
	"github.com/prdiff/prdiff/internal/config"
	"github.com/prdiff/prdiff/internal/git"
	"github.com/prdiff/prdiff/internal/tree"
	"github.com/prdiff/prdiff/internal/watch"
)

func Run() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	fs := flag.NewFlagSet("prdiff", flag.ContinueOnError)
	base := fs.String("base", "", "base branch to diff against (default: first of develop, main, master that resolves)")
	follow := fs.Bool("follow", false, "keep running and reprint the tree when the repository changes")
	noWatch := fs.Bool("nowatch", false, "disable the background repository watcher")
	poll := fs.Duration("poll", 0, "watcher poll interval (default 200ms, or poll_interval_ms from config)")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	showVersion := fs.Bool("version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println(buildinfo.String())
		return nil
	}
	if *verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	repoPath := "."
	baseName := *base
	remaining := fs.Args()
	if len(remaining) > 0 && baseName == "" {
		baseName = remaining[0]
	}

	repo, err := git.Open(repoPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(repo.Path())
	if err != nil {
		return err
	}
	interval := cfg.PollInterval()
	if *poll > 0 {
		interval = *poll
	}
	watchEnabled := cfg.WatchEnabled() && !*noWatch

	session, err := app.New(repo, baseName, app.Options{
		BaseCandidates: cfg.BaseCandidates,
		Watch:          watch.Options{Interval: interval, Notify: watchEnabled},
		WatchEnabled:   watchEnabled,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	printTree(session)
	if !*follow || !watchEnabled {
		return nil
	}
	return followLoop(session, interval)
}

// followLoop drains watcher updates and reprints the tree whenever the
// change set moves, until interrupted.
func followLoop(session *app.Session, interval time.Duration) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	version := session.TreeVersion()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-interrupt:
			return nil
		case <-ticker.C:
			session.DrainUpdates()
			if v := session.TreeVersion(); v != version {
				version = v
				fmt.Println()
				printTree(session)
			}
		}
	}
}

func printTree(session *app.Session) {
	fmt.Printf("%s...HEAD (merge-base %.12s)\n", session.Base(), session.MergeBase())
	for _, item := range session.VisibleItems() {
		indent := strings.Repeat("  ", item.Depth)
		switch n := item.Node.(type) {
		case *tree.Dir:
			fmt.Printf("%s%s/\n", indent, n.DirName)
		case *tree.File:
			c := n.Change
			fmt.Printf("%s%s %s +%d/-%d\n", indent, c.Status.Symbol(), n.Name(), c.Additions, c.Deletions)
		}
	}
}
