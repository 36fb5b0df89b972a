// Command eddev creates opinionated Silverstripe CMS development environments on DDEV.
package main

import (
	"os"

	"github.com/NielsdaWheelz/eddev/internal/cli"
	"github.com/NielsdaWheelz/eddev/internal/errors"
)

func main() {
	err := cli.Run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}
