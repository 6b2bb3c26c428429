package main

import (
	"os"

	"github.com/msageha/baton/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
