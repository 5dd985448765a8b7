package main

import (
	"os"
	"time"

	"github.com/avelinecho/pixelpet/internal/engine"
	"github.com/avelinecho/pixelpet/internal/logging"
)

// handleHook processes one canonical event from stdin. It always returns
// normally (exit 0) and never writes to stdout or stderr: the hook runs
// inside the monitored agent's pipeline, and a non-zero exit or stray
// output would disturb the agent itself.
func handleHook() {
	defer logging.Shutdown()

	eng, _, err := setup()
	if err != nil {
		logging.Logger().Warn("hook_setup_failed", "error", err.Error())
		return
	}

	ev, err := engine.DecodeEvent(os.Stdin)
	if err != nil {
		logging.Logger().Debug("hook_event_rejected", "error", err.Error())
		return
	}

	eng.HandleEvent(ev, time.Now())
}
