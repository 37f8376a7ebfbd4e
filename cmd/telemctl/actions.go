package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/devicelink/telemd/internal/config"
	"github.com/devicelink/telemd/internal/delivery"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh/terminal"
)

func configureAction(c *cli.Context) error {
	output := c.String("output")

	conf, err := config.Load(output)
	if errors.Is(err, fs.ErrNotExist) {
		conf = config.DefaultConfig
	} else if err != nil {
		return cli.Exit(err, 1)
	}

	p := prompter{in: bufio.NewScanner(os.Stdin), out: os.Stdout}

	conf.SSID = p.value(c.String(config.FlagNameSSID), "Network name", conf.SSID)
	conf.Security = p.value(c.String(config.FlagNameSecurity), "Security (open, wpa2-psk, wpa3-sae)", conf.Security)
	if conf.Security != "open" && conf.Security != "none" {
		conf.Passphrase = c.String(config.FlagNamePassphrase)
		if conf.Passphrase == "" {
			fmt.Fprint(os.Stdout, "Passphrase: ")
			data, err := terminal.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return cli.Exit(fmt.Errorf("cannot read passphrase: %w", err), 1)
			}
			fmt.Fprintln(os.Stdout)
			conf.Passphrase = string(data)
		}
	}
	conf.Endpoint = p.value(c.String(config.FlagNameEndpoint), "Endpoint URL", conf.Endpoint)

	if err := conf.Validate(); err != nil {
		return cli.Exit(err, 1)
	}

	if err := writeConfig(conf, output); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Printf("Wrote %v\n", output)

	return nil
}

func configAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if conf.Passphrase != "" {
		conf.Passphrase = "********"
	}

	data, err := conf.Marshal()
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Print(string(data))

	return nil
}

func probeAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if c.String(config.FlagNameEndpoint) != "" {
		conf.Endpoint = c.String(config.FlagNameEndpoint)
	}
	if conf.Endpoint == "" {
		return cli.Exit(fmt.Errorf("no endpoint configured; use --%v", config.FlagNameEndpoint), 1)
	}

	client := delivery.New(conf.DeliveryConfig(), nil)
	if err := client.Init(); err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Cleanup()

	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Writer = os.Stderr
	s.Suffix = " Probing " + conf.Endpoint
	s.Start()
	outcome, err := client.TestConnectivity()
	s.Stop()

	fmt.Println(describeOutcome(outcome, err))
	if err != nil {
		return cli.Exit("", 1)
	}
	return nil
}

func statusAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	s, err := getStatus(conf)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Print(s)

	return nil
}

func activateAction(c *cli.Context) error {
	if err := activate(); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func deactivateAction(c *cli.Context) error {
	if err := deactivate(); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

// describeOutcome renders the result of a connectivity test for humans.
func describeOutcome(outcome delivery.Outcome, err error) string {
	switch outcome.Kind {
	case delivery.OutcomeOK:
		if err == nil {
			return fmt.Sprintf("✅ Endpoint reachable (status %v).", outcome.Response.StatusCode)
		}
	case delivery.OutcomeApplicationError:
		return fmt.Sprintf("❌ Endpoint answered with status %v.", outcome.Status)
	case delivery.OutcomeTimeout:
		return "❌ Endpoint timed out."
	}
	return fmt.Sprintf("⛔️ error: %v", err)
}

func writeConfig(conf config.Config, file string) error {
	data, err := conf.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := os.WriteFile(file, data, 0600); err != nil {
		return fmt.Errorf("cannot write file: %w", err)
	}
	return nil
}

// prompter asks for values that were not given on the command line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// value returns given if it is set. Otherwise it prompts with label, and
// returns current if the answer is empty.
func (p prompter) value(given, label, current string) string {
	if given != "" {
		return given
	}
	if current != "" {
		fmt.Fprintf(p.out, "%v [%v]: ", label, current)
	} else {
		fmt.Fprintf(p.out, "%v: ", label)
	}
	if !p.in.Scan() {
		return current
	}
	if answer := strings.TrimSpace(p.in.Text()); answer != "" {
		return answer
	}
	return current
}
