package main

import (
	"os"

	"github.com/alicanerdogan/livemarkdown/cmd"
	"github.com/alicanerdogan/livemarkdown/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}
