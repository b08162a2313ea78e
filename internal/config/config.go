package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// maxTopicLength keeps RPL_LIST, RPL_TOPIC and TOPIC relays within 512
// bytes for a 63 byte server name, 30 byte nicks and 50 byte channels.
const maxTopicLength = 340

type Configuration struct {
	Server  *ServerConfig
	Limits  *LimitsConfig
	Timers  *TimersConfig
	Files   *FilesConfig
	Metrics *MetricsConfig
	Log     *LogConfig
	Opers   []Oper
}

type ServerConfig struct {
	Name   string
	Listen string
	Port   int
	Info   string
}

type LimitsConfig struct {
	MaxChannels     int
	MaxChannelUsers int
	NickLength      int
	TopicLength     int
	FloodRate       float64
	FloodBurst      int
}

type TimersConfig struct {
	PingInterval    time.Duration
	PingTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type FilesConfig struct {
	MOTD     string
	Nicks    string
	Channels string
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Verbose bool
}

// Oper is an operator credential: a name and a bcrypt hash of its password.
type Oper struct {
	Name string
	Hash string
}

// YamlSource implements cli.ValueSource for a map loaded from YAML
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	if v, ok := y.data[y.key]; ok {
		// Handle slices by joining with comma
		if slice, ok := v.([]any); ok {
			var strs []string
			for _, item := range slice {
				strs = append(strs, fmt.Sprintf("%v", item))
			}
			return strings.Join(strs, ","), true
		}
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

func GetFlags() []cli.Flag {
	configPath := getConfigPath()
	var configData map[string]any
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			_ = yaml.Unmarshal(data, &configData)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", configPath, err)
		}
	}

	// Helper to create sources: EnvVar > YAML > Default
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"b"}, Usage: "use the named configuration file", Sources: cli.EnvVars("IRCD_CONFIG")},

		// Server
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Value: "irc.local", Usage: "server name used as the origin of replies", Sources: src("name", "IRCD_NAME")},
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Value: "", Usage: "address to bind, empty for all interfaces", Sources: src("listen", "IRCD_LISTEN")},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 6667, Usage: "port to listen on", Sources: src("port", "IRCD_PORT")},
		&cli.StringFlag{Name: "info", Value: "a small reactor driven irc server", Usage: "text returned by INFO", Sources: src("info", "IRCD_INFO")},

		// Files
		&cli.StringFlag{Name: "motd", Aliases: []string{"m"}, Value: "data/motd.txt", Usage: "message of the day file", Sources: src("motd", "IRCD_MOTD")},
		&cli.StringFlag{Name: "nicks", Value: "data/nicks", Usage: "nick history file, empty to disable", Sources: src("nicks", "IRCD_NICKS")},
		&cli.StringFlag{Name: "channels", Value: "data/channels", Usage: "channel archive file, empty to disable", Sources: src("channels", "IRCD_CHANNELS")},

		// Limits
		&cli.IntFlag{Name: "maxchannels", Value: 10, Usage: "channels a user may join at once", Sources: src("maxchannels", "IRCD_MAXCHANNELS")},
		&cli.IntFlag{Name: "maxchannelusers", Value: 0, Usage: "members per channel, 0 for unlimited", Sources: src("maxchannelusers", "IRCD_MAXCHANNELUSERS")},
		&cli.IntFlag{Name: "nicklen", Value: 30, Usage: "maximum nickname length", Sources: src("nicklen", "IRCD_NICKLEN")},
		&cli.IntFlag{Name: "topiclen", Value: 300, Usage: "maximum topic length in bytes", Sources: src("topiclen", "IRCD_TOPICLEN")},
		&cli.FloatFlag{Name: "floodrate", Value: 2, Usage: "sustained lines per second accepted from a client, 0 disables", Sources: src("floodrate", "IRCD_FLOODRATE")},
		&cli.IntFlag{Name: "floodburst", Value: 10, Usage: "lines a client may send in a burst", Sources: src("floodburst", "IRCD_FLOODBURST")},

		// Timers
		&cli.DurationFlag{Name: "pinginterval", Value: 2 * time.Minute, Usage: "idle time before the server sends PING", Sources: src("pinginterval", "IRCD_PINGINTERVAL")},
		&cli.DurationFlag{Name: "pingtimeout", Value: time.Minute, Usage: "time allowed to answer a PING", Sources: src("pingtimeout", "IRCD_PINGTIMEOUT")},
		&cli.DurationFlag{Name: "writetimeout", Value: 10 * time.Second, Usage: "deadline for a single socket write", Sources: src("writetimeout", "IRCD_WRITETIMEOUT")},
		&cli.DurationFlag{Name: "shutdowntimeout", Value: 5 * time.Second, Usage: "time allowed to drain clients on shutdown", Sources: src("shutdowntimeout", "IRCD_SHUTDOWNTIMEOUT")},

		// Operators
		&cli.StringSliceFlag{Name: "oper", Aliases: []string{"O"}, Usage: "operator credential as name:bcrypt-hash", Sources: src("oper", "IRCD_OPER")},

		// Observability
		&cli.StringFlag{Name: "metrics", Usage: "address for the prometheus /metrics endpoint, empty to disable", Sources: src("metrics", "IRCD_METRICS")},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable verbose logging", Sources: src("verbose", "IRCD_VERBOSE")},
	}
}

func getConfigPath() string {
	if v := os.Getenv("IRCD_CONFIG"); v != "" {
		return v
	}
	for i, arg := range os.Args {
		if arg == "--config" || arg == "-b" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// ParseOpers reads name:hash entries. The hash itself contains '$' but
// never ':', so the first colon separates the two.
func ParseOpers(entries []string) ([]Oper, error) {
	var opers []Oper
	for _, entry := range entries {
		name, hash, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("%w: oper entry %q is not name:hash", ErrInvalid, entry)
		}
		opers = append(opers, Oper{Name: name, Hash: hash})
	}
	return opers, nil
}

func (c *Configuration) Validate() error {
	switch {
	case c.Server.Name == "" || strings.ContainsAny(c.Server.Name, " :"):
		return fmt.Errorf("%w: server name %q", ErrInvalid, c.Server.Name)
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Server.Port)
	case c.Limits.MaxChannels < 1:
		return fmt.Errorf("%w: maxchannels must be at least 1", ErrInvalid)
	case c.Limits.MaxChannelUsers < 0:
		return fmt.Errorf("%w: maxchannelusers must not be negative", ErrInvalid)
	case c.Limits.NickLength < 1:
		return fmt.Errorf("%w: nicklen must be at least 1", ErrInvalid)
	case c.Limits.TopicLength < 1 || c.Limits.TopicLength > maxTopicLength:
		return fmt.Errorf("%w: topiclen must be between 1 and %d", ErrInvalid, maxTopicLength)
	case c.Limits.FloodRate < 0 || c.Limits.FloodBurst < 1:
		return fmt.Errorf("%w: flood control needs floodrate >= 0 and floodburst >= 1", ErrInvalid)
	case c.Timers.PingInterval <= 0 || c.Timers.PingTimeout <= 0:
		return fmt.Errorf("%w: ping timers must be positive", ErrInvalid)
	}
	return nil
}

// Address is the listen address in host:port form.
func (c *Configuration) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Listen, c.Server.Port)
}

func (c *Configuration) PrintConfig() {
	fmt.Printf("name: %s\n", c.Server.Name)
	fmt.Printf("listen: %s\n", c.Address())
	fmt.Printf("info: %s\n", c.Server.Info)
	fmt.Printf("motd: %s\n", c.Files.MOTD)
	fmt.Printf("nicks: %s\n", c.Files.Nicks)
	fmt.Printf("channels: %s\n", c.Files.Channels)
	fmt.Printf("maxchannels: %d\n", c.Limits.MaxChannels)
	fmt.Printf("maxchannelusers: %d\n", c.Limits.MaxChannelUsers)
	fmt.Printf("nicklen: %d\n", c.Limits.NickLength)
	fmt.Printf("topiclen: %d\n", c.Limits.TopicLength)
	fmt.Printf("floodrate: %.2f\n", c.Limits.FloodRate)
	fmt.Printf("floodburst: %d\n", c.Limits.FloodBurst)
	fmt.Printf("pinginterval: %s\n", c.Timers.PingInterval)
	fmt.Printf("pingtimeout: %s\n", c.Timers.PingTimeout)
	fmt.Printf("writetimeout: %s\n", c.Timers.WriteTimeout)
	fmt.Printf("shutdowntimeout: %s\n", c.Timers.ShutdownTimeout)
	fmt.Printf("metrics: %s\n", c.Metrics.Addr)
	fmt.Printf("verbose: %t\n", c.Log.Verbose)
	for _, o := range c.Opers {
		fmt.Printf("oper: %s\n", o.Name)
	}
}

func NewConfiguration(c *cli.Command) (*Configuration, error) {
	if c.IsSet("config") {
		zap.S().Infow("Using config file", "path", c.String("config"))
	}

	opers, err := ParseOpers(c.StringSlice("oper"))
	if err != nil {
		return nil, err
	}

	config := &Configuration{
		Server: &ServerConfig{
			Name:   c.String("name"),
			Listen: c.String("listen"),
			Port:   c.Int("port"),
			Info:   c.String("info"),
		},
		Limits: &LimitsConfig{
			MaxChannels:     c.Int("maxchannels"),
			MaxChannelUsers: c.Int("maxchannelusers"),
			NickLength:      c.Int("nicklen"),
			TopicLength:     c.Int("topiclen"),
			FloodRate:       c.Float("floodrate"),
			FloodBurst:      c.Int("floodburst"),
		},
		Timers: &TimersConfig{
			PingInterval:    c.Duration("pinginterval"),
			PingTimeout:     c.Duration("pingtimeout"),
			WriteTimeout:    c.Duration("writetimeout"),
			ShutdownTimeout: c.Duration("shutdowntimeout"),
		},
		Files: &FilesConfig{
			MOTD:     c.String("motd"),
			Nicks:    c.String("nicks"),
			Channels: c.String("channels"),
		},
		Metrics: &MetricsConfig{Addr: c.String("metrics")},
		Log:     &LogConfig{Verbose: c.Bool("verbose")},
		Opers:   opers,
	}

	// A bare positional argument is the listen port.
	if c.Args().Present() {
		port, err := strconv.Atoi(c.Args().First())
		if err != nil {
			return nil, fmt.Errorf("%w: port argument %q", ErrInvalid, c.Args().First())
		}
		config.Server.Port = port
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
