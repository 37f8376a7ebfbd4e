package main

import (
	"fmt"
	"os"
	"path/filepath"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	app, err := telemd.NewApp(telemd.ShortName+"ctl",
		&cli.BoolFlag{
			Name:   "generate-man-page",
			Hidden: true,
		},
		&cli.BoolFlag{
			Name:   "generate-markdown",
			Hidden: true,
		},
	)
	if err != nil {
		log.Fatal(err)
	}
	app.Usage = "configure and inspect " + telemd.LongName

	log.SetFlags(0)

	app.Commands = []*cli.Command{
		{
			Name:  "configure",
			Usage: "prompts for network and endpoint settings and writes a config file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:      "output",
					Aliases:   []string{"o"},
					Value:     filepath.Join(telemd.ConfigDir, "config.toml"),
					TakesFile: true,
					Usage:     "write config to `FILE`",
				},
				&cli.StringFlag{
					Name:  config.FlagNameSSID,
					Usage: "join the network named `SSID`",
				},
				&cli.StringFlag{
					Name:  config.FlagNameSecurity,
					Usage: "set the network security `MODE`",
				},
				&cli.StringFlag{
					Name:  config.FlagNamePassphrase,
					Usage: "authenticate with `PASSPHRASE`",
				},
				&cli.StringFlag{
					Name:  config.FlagNameEndpoint,
					Usage: "post telemetry to `URL`",
				},
			},
			Action: configureAction,
		},
		{
			Name:   "config",
			Usage:  "prints the effective configuration as TOML",
			Action: configAction,
		},
		{
			Name:  "probe",
			Usage: "posts a connectivity test document to the endpoint",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  config.FlagNameEndpoint,
					Usage: "probe `URL` instead of the configured endpoint",
				},
			},
			Action: probeAction,
		},
		{
			Name:   "status",
			Usage:  "reports service status",
			Action: statusAction,
		},
		{
			Name:   "activate",
			Usage:  "enables and starts the service",
			Action: activateAction,
		},
		{
			Name:   "deactivate",
			Usage:  "stops and disables the service",
			Action: deactivateAction,
		},
	}
	app.EnableBashCompletion = true
	app.BashComplete = telemd.BashComplete
	app.Action = func(c *cli.Context) error {
		type GenerationFunc func() (string, error)
		var generationFunc GenerationFunc
		if c.Bool("generate-man-page") {
			generationFunc = c.App.ToMan
		} else if c.Bool("generate-markdown") {
			generationFunc = c.App.ToMarkdown
		} else {
			cli.ShowAppHelpAndExit(c, 0)
		}
		data, err := generationFunc()
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by the "config" flag, or returns the
// defaults when no file is given.
func loadConfig(c *cli.Context) (config.Config, error) {
	file := c.String("config")
	if file == "" {
		return config.DefaultConfig, nil
	}
	return config.Load(file)
}
