package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/greenleads/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "greenleads: %v\n", err)
		os.Exit(1)
	}
}
