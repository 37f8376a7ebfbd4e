package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/config"
	"github.com/devicelink/telemd/internal/delivery"
	"github.com/devicelink/telemd/internal/link"
	"github.com/devicelink/telemd/internal/link/nm"
	"github.com/devicelink/telemd/internal/link/sim"
	"github.com/devicelink/telemd/internal/sensor"
	"github.com/devicelink/telemd/internal/storage"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func main() {
	app, err := telemd.NewApp(telemd.LongName, flags()...)
	if err != nil {
		log.Fatal(err)
	}
	app.Usage = "keep the wireless link up and post telemetry to an HTTP endpoint"
	app.Action = run
	app.EnableBashCompletion = true
	app.BashComplete = telemd.BashComplete

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func flags() []cli.Flag {
	d := config.DefaultConfig

	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameLink,
			Value: d.Link,
			Usage: "Manage the link with `DRIVER` (nm or sim)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameInterface,
			Usage: "Use wifi interface `NAME`",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameSSID,
			Usage: "Join the network named `SSID`",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNamePassphrase,
			Usage: "Authenticate with `PASSPHRASE`",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameSecurity,
			Value: d.Security,
			Usage: "Set the network security `MODE` (open, wpa2-psk or wpa3-sae)",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameMaxRetry,
			Value: d.MaxRetry,
			Usage: "Reconnect at most `N` times after the link drops",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameConnectTimeout,
			Value: d.ConnectTimeout,
			Usage: "Give up connecting after `MS` milliseconds",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameEndpoint,
			Usage: "Post telemetry to `URL`",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameHTTPTimeout,
			Value: d.HTTPTimeout,
			Usage: "Abort HTTP requests after `MS` milliseconds",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameUserAgent,
			Usage: "Send `STRING` as the User-Agent header",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameResponseBufferSize,
			Value: d.ResponseBufferSize,
			Usage: "Keep at most `BYTES` of each response body",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNamePostInterval,
			Value: d.PostInterval,
			Usage: "Post telemetry every `SECONDS`",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:      config.FlagNameStateDir,
			Value:     telemd.StateDir,
			TakesFile: true,
			Usage:     "Store state in `DIR`",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameStatsEvery,
			Value: d.StatsEvery,
			Usage: "Log delivery statistics every `N` posts",
		}),
		&cli.BoolFlag{
			Name:  "probe",
			Usage: "Test endpoint connectivity before the first post",
		},
		&cli.BoolFlag{
			Name:   "generate-man-page",
			Hidden: true,
		},
		&cli.BoolFlag{
			Name:   "generate-markdown",
			Hidden: true,
		},
	}
}

func run(c *cli.Context) error {
	if c.Bool("generate-man-page") || c.Bool("generate-markdown") {
		type GenerationFunc func() (string, error)
		var generationFunc GenerationFunc
		if c.Bool("generate-man-page") {
			generationFunc = c.App.ToMan
		} else {
			generationFunc = c.App.ToMarkdown
		}
		data, err := generationFunc()
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Println(data)
		return nil
	}

	conf := config.FromContext(c)
	if err := conf.Validate(); err != nil {
		return cli.Exit(err, 1)
	}

	state, err := storage.Bootstrap(conf.StateDir)
	if err != nil {
		return cli.Exit(fmt.Errorf("cannot bootstrap storage: %w", err), 1)
	}
	log.SetPrefix(fmt.Sprintf("[%v %v] ", c.App.Name, shortID(state.DeviceID)))
	log.Infof("starting %v version %v", c.App.Name, telemd.Version)

	sensors := &sensor.Service{}
	if err := sensors.Init(); err != nil {
		return cli.Exit(fmt.Errorf("cannot initialize sensors: %w", err), 1)
	}
	defer sensors.Cleanup()

	driver, err := newDriver(conf)
	if err != nil {
		return cli.Exit(err, 1)
	}
	linkConfig, err := conf.LinkConfig()
	if err != nil {
		return cli.Exit(err, 1)
	}
	manager := link.New(linkConfig, driver)
	if err := manager.Init(); err != nil {
		return cli.Exit(fmt.Errorf("cannot initialize link: %w", err), 1)
	}
	defer manager.Cleanup()

	if err := manager.Connect(); err != nil {
		log.Errorf("cannot connect: %v", err)
	} else if info, err := manager.AddressInfo(); err == nil {
		log.Infof("link up: %v", info)
	}

	client := delivery.New(conf.DeliveryConfig(), nil)
	if err := client.Init(); err != nil {
		return cli.Exit(fmt.Errorf("cannot initialize delivery client: %w", err), 1)
	}
	defer client.Cleanup()

	if c.Bool("probe") && manager.IsConnected() {
		_, _ = client.TestConnectivity()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("cannot notify systemd: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	a := &agent{
		link:       manager,
		client:     client,
		sensors:    sensors,
		statsEvery: conf.StatsEvery,
	}
	a.run(time.Duration(conf.PostInterval)*time.Second, quit)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warnf("cannot notify systemd: %v", err)
	}
	log.Infof("shutting down; %v", formatStats(client.Stats()))

	return nil
}

func newDriver(conf config.Config) (link.Driver, error) {
	switch conf.Link {
	case config.LinkNetworkManager:
		d, err := nm.New(conf.Interface)
		if err != nil {
			return nil, fmt.Errorf("cannot create NetworkManager driver: %w", err)
		}
		return d, nil
	case config.LinkSimulated:
		return sim.New(link.EventAddressAcquired), nil
	default:
		return nil, telemd.InvalidArgumentError{Flag: config.FlagNameLink, Value: conf.Link}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
