package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/briantomko/OpenMDAO/internal/app"
	"github.com/briantomko/OpenMDAO/internal/cli"
)

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run holds the real logic so tests can drive it with their own streams.
func run(outW, logW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	return app.NewApp(outW, logW, cfg).Run(context.Background())
}
