package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avelinecho/pixelpet/internal/config"
	"github.com/avelinecho/pixelpet/internal/engine"
	"github.com/avelinecho/pixelpet/internal/logging"
	"github.com/avelinecho/pixelpet/internal/realtime"
)

// stdoutBroadcaster prints each changed output record as one JSON line, the
// shape a terminal pet renderer consumes.
type stdoutBroadcaster struct {
	enc *json.Encoder
}

func (b *stdoutBroadcaster) Broadcast(out engine.Output) {
	b.enc.Encode(out)
}

// fanout delivers each output to every sink.
type fanout []engine.Broadcaster

func (f fanout) Broadcast(out engine.Output) {
	for _, b := range f {
		b.Broadcast(out)
	}
}

// handleWatch runs the long-lived consumer loop until interrupted.
func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serve := fs.Bool("serve", false, "expose a websocket status feed")
	addr := fs.String("addr", "", "feed listen address (default from config)")
	quiet := fs.Bool("quiet", false, "suppress JSON output on stdout")
	fs.Parse(args)

	defer logging.Shutdown()
	defer func() {
		if r := recover(); r != nil {
			// Preserve the recent log tail for the crash report.
			if dir, err := config.Dir(); err == nil {
				_ = logging.DumpRingBuffer(filepath.Join(dir, "crash.log"))
			}
			panic(r)
		}
	}()

	eng, cfg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixelpet: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks fanout
	if !*quiet {
		sinks = append(sinks, &stdoutBroadcaster{enc: json.NewEncoder(os.Stdout)})
	}
	if *serve {
		hub := realtime.NewHub(cfg.Feed.BroadcastHz)
		listenAddr := cfg.Feed.Addr
		if *addr != "" {
			listenAddr = *addr
		}
		go func() {
			if err := hub.Serve(ctx, listenAddr); err != nil {
				fmt.Fprintf(os.Stderr, "pixelpet: feed: %v\n", err)
			}
		}()
		sinks = append(sinks, hub)
	}

	var hub engine.Broadcaster
	if len(sinks) > 0 {
		hub = sinks
	}

	loop := engine.NewLoop(eng, hub, time.Now())
	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "pixelpet: %v\n", err)
		os.Exit(1)
	}
}
