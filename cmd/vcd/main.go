// Command vcd is the engine daemon: it owns the state document, the
// supervised child processes, and the control socket that `vc` CLI
// invocations dial.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/loopctl/loopctl/internal/adapter"
	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/control"
	"github.com/loopctl/loopctl/internal/engine"
	"github.com/loopctl/loopctl/internal/issue"
	"github.com/loopctl/loopctl/internal/journal"
	"github.com/loopctl/loopctl/internal/store"
	"github.com/loopctl/loopctl/internal/supervisor"
	"github.com/loopctl/loopctl/internal/types"
)

func main() {
	cfg, err := config.Load(filepath.Join(".vc", "config.yaml"))
	if err != nil {
		log.Fatalf("vcd: load config: %v", err)
	}

	st, err := store.New(store.Config{DataRoot: cfg.DataRoot})
	if err != nil {
		log.Fatalf("vcd: open store: %v", err)
	}
	jr := journal.New(filepath.Join(cfg.DataRoot, "loops"))
	sup := supervisor.New()

	reg := adapter.NewRegistry()
	reg.Register(&adapter.StreamingJSON{Binary: "claude"})
	reg.Register(&adapter.Generic{Binary: "amp"})

	var tracker issue.Tracker = issue.NullTracker{}
	if os.Getenv("VC_ISSUE_TRACKER_HTTP") == "true" {
		tracker = issue.NewHTTPTracker(issue.DefaultHTTPTrackerConfig())
	}

	eng := engine.New(st, jr, sup, reg, tracker)

	if n, err := eng.MarkOrphanedPausedLoops(); err != nil {
		log.Printf("vcd: orphan sweep failed: %v", err)
	} else if n > 0 {
		fmt.Printf("vcd: marked %d orphaned loop(s) as paused\n", n)
	}

	srv, err := control.NewServer(cfg.SocketPath(), control.Dispatch(eng))
	if err != nil {
		log.Fatalf("vcd: create control server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("vcd: start control server: %v", err)
	}
	fmt.Printf("vcd: listening on %s\n", srv.SocketPath())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nvcd: shutting down, pausing running loops...")
	shutdown(eng)

	cancel()
	if err := srv.Stop(); err != nil {
		log.Printf("vcd: error stopping control server: %v", err)
	}
	fmt.Println("vcd: stopped")
}

// shutdown pauses every running loop so the state document records it as
// paused rather than running. A restarted daemon holds no handle on those
// processes, so resuming such a loop spawns a fresh process seeded from
// its log.
func shutdown(eng *engine.Engine) {
	doc, err := eng.Document()
	if err != nil {
		log.Printf("vcd: read state during shutdown: %v", err)
		return
	}
	for _, l := range doc.Loops {
		if l.Status != types.StatusRunning {
			continue
		}
		if err := eng.PauseLoop(l.ID); err != nil {
			log.Printf("vcd: pause %s during shutdown: %v", l.ID, err)
		}
	}
}
