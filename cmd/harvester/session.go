package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonathan/compass-harvester/internal/observability"
	"github.com/jonathan/compass-harvester/internal/store"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// lockHint explains a refused run lock.
func lockHint(err error) error {
	var locked *store.LockedError
	if errors.As(err, &locked) {
		return fmt.Errorf("%w (another harvester process owns this store; use its control API, wait for it to exit, or pass --force-unlock if it is gone)", err)
	}
	return err
}

// parseIndexes parses "0,2,5" into row indexes.
func parseIndexes(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no indexes given")
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid index %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// stdoutPrinter prints results.
func stdoutPrinter() *observability.Printer {
	return observability.NewPrinter(os.Stdout)
}

// verbosePrinter prints details to stderr, or nothing unless --verbose.
func verbosePrinter() *observability.Printer {
	if !verbose {
		return observability.NewPrinter(io.Discard)
	}
	return observability.NewPrinter(os.Stderr)
}
