// Package main starts the authoritative match host and handles termination.
//
// The process owns the engine, the match journal, and the websocket relay;
// participants connect to it and mirror its state.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	hostcmd "blockwar/internal/cmd/host"
	"blockwar/internal/platform/config"
)

func main() {
	cfg, err := hostcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[HOST] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hostcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
