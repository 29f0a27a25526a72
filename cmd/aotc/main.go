// Command aotc compiles model methods into native kernels.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/aotc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
