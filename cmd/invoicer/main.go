package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pesio-ai/be-ar-invoicing/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrIncomplete) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
