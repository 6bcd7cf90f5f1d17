// Package main provides changeset administration utilities.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	platformcmd "github.com/quillsync/quillsync/internal/platform/cmd"
	"github.com/quillsync/quillsync/internal/platform/config"
	"github.com/quillsync/quillsync/internal/tools/changesetadmin"
)

func main() {
	cfg, err := changesetadmin.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceChangesetAdmin, func(ctx context.Context) error {
		return changesetadmin.Run(ctx, cfg, os.Stdout, os.Stderr)
	})
	if err != nil {
		config.Exitf("Error: %v", err)
	}
}
