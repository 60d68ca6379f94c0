package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/macropower/orgz/internal/cli"
	"github.com/macropower/orgz/pkg/version"
)

func main() {
	err := fang.Execute(context.Background(), cli.NewRootCmd(),
		fang.WithVersion(version.Info()),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		os.Exit(1)
	}
}
