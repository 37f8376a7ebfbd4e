package telemd

import (
	"fmt"
	"io"

	"git.sr.ht/~spc/go-log"
	"github.com/urfave/cli/v2"
)

// BashComplete prints the application's global flags, followed by every
// visible command with its flags and subcommands.
func BashComplete(c *cli.Context) {
	printFlagNames(c.App.VisibleFlags(), c.App.Writer)

	for _, command := range c.App.VisibleCommands() {
		completeCommand(command, c.App.Writer)
	}
}

func completeCommand(cmd *cli.Command, w io.Writer) {
	for _, name := range cmd.Names() {
		printCompletion(w, name)
	}

	printFlagNames(cmd.VisibleFlags(), w)

	for _, sub := range cmd.Subcommands {
		completeCommand(sub, w)
	}
}

// printFlagNames prints the long and short names of each flag.
func printFlagNames(flags []cli.Flag, w io.Writer) {
	for _, flag := range flags {
		for _, name := range flag.Names() {
			if len(name) > 1 {
				printCompletion(w, "--"+name)
			} else {
				printCompletion(w, "-"+name)
			}
		}
	}
}

func printCompletion(w io.Writer, s string) {
	if _, err := fmt.Fprintln(w, s); err != nil {
		log.Errorf("cannot print completion: %v", err)
	}
}
