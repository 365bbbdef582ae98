package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

const version = "0.2.0"

func main() {
	if err := fang.Execute(
		context.Background(),
		NewRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
