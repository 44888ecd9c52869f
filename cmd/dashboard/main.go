// Command dashboard runs the dashboard backend: the JSON auth API and the
// embedded login and dashboard pages.
package main

import (
	"fmt"
	"os"

	"github.com/patric-chuzhbe/dashboard/internal/app"
	"github.com/patric-chuzhbe/dashboard/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	theApp, err := app.New()
	if err != nil {
		return err
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		logger.Log.Errorw("server stopped with error", "error", err)
		return err
	}

	return nil
}
