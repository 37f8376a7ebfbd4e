package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/delivery"
	"github.com/devicelink/telemd/internal/link"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
)

const (
	FlagNameLogLevel           = "log-level"
	FlagNameLink               = "link"
	FlagNameInterface          = "interface"
	FlagNameSSID               = "ssid"
	FlagNamePassphrase         = "passphrase"
	FlagNameSecurity           = "security"
	FlagNameMaxRetry           = "max-retry"
	FlagNameConnectTimeout     = "connect-timeout"
	FlagNameEndpoint           = "endpoint"
	FlagNameHTTPTimeout        = "http-timeout"
	FlagNameUserAgent          = "user-agent"
	FlagNameResponseBufferSize = "response-buffer-size"
	FlagNamePostInterval       = "post-interval"
	FlagNameStateDir           = "state-dir"
	FlagNameStatsEvery         = "stats-every"
)

// Link driver names.
const (
	LinkNetworkManager = "nm"
	LinkSimulated      = "sim"
)

// DefaultConfig holds the value of every setting that is not given.
var DefaultConfig = Config{
	LogLevel:           "info",
	Link:               LinkNetworkManager,
	Security:           link.SecurityWPA2PSK.String(),
	MaxRetry:           5,
	ConnectTimeout:     int(link.DefaultConnectTimeout / time.Millisecond),
	HTTPTimeout:        int(delivery.DefaultTimeout / time.Millisecond),
	ResponseBufferSize: delivery.DefaultResponseBufferSize,
	PostInterval:       30,
	StatsEvery:         10,
}

// Config contains current configuration state for telemd.
type Config struct {
	// LogLevel is the level value used for logging.
	LogLevel string `toml:"log-level"`

	// Link selects the link driver: "nm" for NetworkManager or "sim" for the
	// in-process simulator.
	Link string `toml:"link"`

	// Interface is the name of the wifi interface. When empty the first wifi
	// device is used.
	Interface string `toml:"interface,omitempty"`

	// SSID is the name of the network to join.
	SSID string `toml:"ssid"`

	// Passphrase is the network credential.
	Passphrase string `toml:"passphrase,omitempty"`

	// Security is the authentication mode of the network.
	Security string `toml:"security"`

	// MaxRetry is the number of reconnect attempts made after the link drops
	// before the connection is reported failed.
	MaxRetry int `toml:"max-retry"`

	// ConnectTimeout bounds a connect call, in milliseconds.
	ConnectTimeout int `toml:"connect-timeout"`

	// Endpoint is the URL telemetry is posted to.
	Endpoint string `toml:"endpoint"`

	// HTTPTimeout bounds a single request, in milliseconds.
	HTTPTimeout int `toml:"http-timeout"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `toml:"user-agent,omitempty"`

	// ResponseBufferSize bounds the stored response body, in bytes.
	ResponseBufferSize int `toml:"response-buffer-size"`

	// PostInterval is the delay between posts, in seconds.
	PostInterval int `toml:"post-interval"`

	// StateDir holds the device ID.
	StateDir string `toml:"state-dir,omitempty"`

	// StatsEvery logs delivery statistics every this many posts. Zero
	// disables it.
	StatsEvery int `toml:"stats-every"`
}

// FromContext reads a Config from the flags of c.
func FromContext(c *cli.Context) Config {
	return Config{
		LogLevel:           c.String(FlagNameLogLevel),
		Link:               c.String(FlagNameLink),
		Interface:          c.String(FlagNameInterface),
		SSID:               c.String(FlagNameSSID),
		Passphrase:         c.String(FlagNamePassphrase),
		Security:           c.String(FlagNameSecurity),
		MaxRetry:           c.Int(FlagNameMaxRetry),
		ConnectTimeout:     c.Int(FlagNameConnectTimeout),
		Endpoint:           c.String(FlagNameEndpoint),
		HTTPTimeout:        c.Int(FlagNameHTTPTimeout),
		UserAgent:          c.String(FlagNameUserAgent),
		ResponseBufferSize: c.Int(FlagNameResponseBufferSize),
		PostInterval:       c.Int(FlagNamePostInterval),
		StateDir:           c.String(FlagNameStateDir),
		StatsEvery:         c.Int(FlagNameStatsEvery),
	}
}

// Load reads a TOML file on top of DefaultConfig.
func Load(file string) (Config, error) {
	conf := DefaultConfig

	data, err := os.ReadFile(file)
	if err != nil {
		return conf, fmt.Errorf("cannot read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("cannot parse config file: %w", err)
	}

	return conf, nil
}

// Marshal encodes conf as TOML.
func (conf Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(conf)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	return data, nil
}

// Validate checks that every required value is present and every value is in
// range.
func (conf Config) Validate() error {
	switch conf.Link {
	case LinkNetworkManager, LinkSimulated:
	default:
		return telemd.InvalidArgumentError{Flag: FlagNameLink, Value: conf.Link}
	}
	if conf.SSID == "" {
		return telemd.InvalidArgumentError{Flag: FlagNameSSID}
	}
	security, err := link.ParseSecurity(conf.Security)
	if err != nil {
		return telemd.InvalidArgumentError{Flag: FlagNameSecurity, Value: conf.Security}
	}
	if security != link.SecurityOpen && conf.Passphrase == "" {
		return telemd.InvalidArgumentError{Flag: FlagNamePassphrase}
	}
	if conf.Endpoint == "" {
		return telemd.InvalidArgumentError{Flag: FlagNameEndpoint}
	}
	if u, err := url.Parse(conf.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return telemd.InvalidArgumentError{Flag: FlagNameEndpoint, Value: conf.Endpoint}
	}

	positive := []struct {
		flag  string
		value int
	}{
		{FlagNameConnectTimeout, conf.ConnectTimeout},
		{FlagNameHTTPTimeout, conf.HTTPTimeout},
		{FlagNameResponseBufferSize, conf.ResponseBufferSize},
		{FlagNamePostInterval, conf.PostInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return telemd.InvalidArgumentError{Flag: p.flag, Value: fmt.Sprint(p.value)}
		}
	}
	if conf.MaxRetry < 0 {
		return telemd.InvalidArgumentError{Flag: FlagNameMaxRetry, Value: fmt.Sprint(conf.MaxRetry)}
	}
	if conf.StatsEvery < 0 {
		return telemd.InvalidArgumentError{Flag: FlagNameStatsEvery, Value: fmt.Sprint(conf.StatsEvery)}
	}

	return nil
}

// LinkConfig returns the link manager settings.
func (conf Config) LinkConfig() (link.Config, error) {
	security, err := link.ParseSecurity(conf.Security)
	if err != nil {
		return link.Config{}, telemd.InvalidArgumentError{Flag: FlagNameSecurity, Value: conf.Security}
	}
	return link.Config{
		Network: link.Network{
			SSID:       conf.SSID,
			Passphrase: conf.Passphrase,
			Security:   security,
		},
		MaxRetry:       uint(conf.MaxRetry),
		ConnectTimeout: time.Duration(conf.ConnectTimeout) * time.Millisecond,
	}, nil
}

// DeliveryConfig returns the delivery client settings.
func (conf Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		Endpoint:           conf.Endpoint,
		Timeout:            time.Duration(conf.HTTPTimeout) * time.Millisecond,
		UserAgent:          conf.UserAgent,
		ResponseBufferSize: conf.ResponseBufferSize,
	}
}
