// Command kestrel boots the simulated machine.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/kestrel-os/kestrel/pkg/cli"
	"github.com/kestrel-os/kestrel/pkg/shutdown"
)

// version is set at link time.
var version = "dev"

func main() {
	cfg := cli.NewConfig()
	cfg.Version = version

	err := cli.NewCLI(cfg).ExecuteContext(context.Background(), os.Args[1:])
	if err == nil {
		return
	}

	var exit *cli.ExitError
	switch {
	case errors.As(err, &exit):
		os.Exit(exit.Code)
	case errors.Is(err, shutdown.ErrInterrupted):
		os.Exit(130)
	default:
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
