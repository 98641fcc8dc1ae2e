// Command authctl drives the session lifecycle from a terminal.
//
//	authctl [flags] status|signin|signup|verify|signout|reset-password|usage|log|limits
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/scanauth/internal/authctl"
)

func main() {
	cfg, err := authctl.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := authctl.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		exitf("Error: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
