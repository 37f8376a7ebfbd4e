package telemd

import (
	"fmt"

	"git.sr.ht/~spc/go-log"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// NewApp creates a new cli Application with name and default flags. Flags
// wrapped with altsrc may also be read from the TOML file named by the
// "config" flag.
func NewApp(name string, flags ...cli.Flag) (*cli.App, error) {
	app := cli.NewApp()
	app.Name = name
	app.Version = Version

	defaultConfigFilePath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	app.Flags = append([]cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Value:     defaultConfigFilePath,
			TakesFile: true,
			Usage:     "Read config values from `FILE`",
		},
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Set the logging output level to `LEVEL`",
		}),
	}, flags...)

	// This BeforeFunc will load flag values from a config file only if the
	// "config" flag value is non-zero.
	app.Before = func(c *cli.Context) error {
		if c.String("config") != "" {
			inputSource, err := altsrc.NewTomlSourceFromFlagFunc("config")(c)
			if err != nil {
				return err
			}
			if err := altsrc.ApplyInputSourceValues(c, inputSource, app.Flags); err != nil {
				return err
			}
		}

		level, err := log.ParseLevel(c.String("log-level"))
		if err != nil {
			return cli.Exit(err, 1)
		}
		log.SetLevel(level)
		log.SetPrefix(fmt.Sprintf("[%v] ", app.Name))

		return nil
	}

	return app, nil
}
