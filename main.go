// ════════════════════════════════════════════════════════════════════════════════════════════════
// Ticket Lock Core - Machine Runner
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Boot, workload and verification driver
//
// Description:
//   Boots a set of simulated cores through the core-local handshake, brings up the console and
//   the interrupt table on each, and drives ticket and reader-writer lock traffic while a timer
//   interrupt fires on every core. The lock trace is checked for FIFO grants, exported to sqlite
//   and summarized as JSON on stdout.
//
// Usage:
//   ticketcore [config.json]
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sugawarayuuta/sonnet"

	"ticketcore/control"
	"ticketcore/debug"
	"ticketcore/utils"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := loadConfig(path)
	if err != nil {
		debug.DropError("CONFIG", err)
		os.Exit(2)
	}
	debug.DropMessage("INIT", utils.Itoa(cfg.Cores)+" cores, "+utils.Itoa(cfg.Rounds)+" rounds")

	setupSignalHandling()

	rep, err := execute(cfg, os.Stderr)
	if out, merr := sonnet.Marshal(rep); merr == nil {
		os.Stdout.Write(append(out, '\n'))
	} else {
		debug.DropError("REPORT", merr)
	}
	if err != nil {
		debug.DropError("RUN", err)
		os.Exit(1)
	}
}

func setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, shutting down...")
		control.Shutdown()
	}()
}
