package main

import (
	"os"

	"sheetsync/internal/app"
)

func main() {
	os.Exit(app.Execute())
}
