package main

import (
	"fmt"
	"os"

	"github.com/small-frappuccino/guildsetup/pkg/app"
)

// main is the entry point of the Discord bot.
func main() {
	if err := app.Run("guildsetup", "GUILDSETUP_BOT_TOKEN"); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}
