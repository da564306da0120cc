package main

import (
	"os"

	"github.com/imkarma/laneboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
