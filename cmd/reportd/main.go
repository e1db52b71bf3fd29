package main

import (
	"flag"
	"fmt"
	"os"

	"reportd/internal/app"
)

func main() {
	once := flag.Bool("once", false, "run the report job once and exit")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err)
		os.Exit(1)
	}
	if err := application.Run(*once); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
