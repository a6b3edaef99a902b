// Package main provides the class-widener CLI that widens access flags and
// injects interfaces into the classes of a JAR, driven by access rule files
// and mod manifests.
//
// Commands:
//   - apply  : rewrite an archive (class-widener apply -m mods in.jar out.jar)
//   - plan   : show per-class diffs of what apply would change
//   - check  : parse and lint all sources without touching an archive
//   - resolve: print the merged rule set as one canonical rule file
//   - schema : print the JSON schema of the manifest subset that is read
//
// Settings come from class-widener.yaml, then CLASS_WIDENER_* environment
// variables, then flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		stop()
		os.Exit(1)
	}
}
