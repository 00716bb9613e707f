package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Relay    RelayConfig    `yaml:"relay"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Client   ClientConfig   `yaml:"client"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins []string `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"memory"`
	DSN    string `yaml:"dsn" env:"DB_DSN" env-default:""`
}

type RelayConfig struct {
	PingPeriod   time.Duration `yaml:"ping_period" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"5s"`
	ReadLimit    int64         `yaml:"read_limit" env-default:"65536"`
	SendBuffer   int           `yaml:"send_buffer" env-default:"64"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

type RoleMedia struct {
	Width             int           `yaml:"width"`
	Height            int           `yaml:"height"`
	FrameRate         int           `yaml:"frame_rate"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

type WebRTCConfig struct {
	ICEServers           []ICEServer          `yaml:"ice_servers"`
	ConnectionTimeout    time.Duration        `yaml:"connection_timeout" env-default:"15s"`
	MaxReconnectAttempts int                  `yaml:"max_reconnect_attempts" env-default:"2"`
	ReconnectBackoff     time.Duration        `yaml:"reconnect_backoff" env-default:"2s"`
	PollInterval         time.Duration        `yaml:"poll_interval" env-default:"2s"`
	DegradedPolls        int                  `yaml:"degraded_polls" env-default:"3"`
	Trickle              bool                 `yaml:"trickle" env-default:"true"`
	ICECandidatePoolSize uint8                `yaml:"ice_candidate_pool_size" env-default:"10"`
	Roles                map[string]RoleMedia `yaml:"roles"`
}

type ClientConfig struct {
	ServerURL string `yaml:"server_url" env:"TELEMED_SERVER_URL" env-default:"http://localhost:8080"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

// TimeoutFor returns the connection timeout for role, falling back to the global one.
func (c WebRTCConfig) TimeoutFor(role string) time.Duration {
	if m, ok := c.Roles[role]; ok && m.ConnectionTimeout > 0 {
		return m.ConnectionTimeout
	}
	return c.ConnectionTimeout
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	}
	if len(c.WebRTC.ICEServers) == 0 {
		c.WebRTC.ICEServers = DefaultICEServers()
	}
	if c.WebRTC.Roles == nil {
		c.WebRTC.Roles = map[string]RoleMedia{
			"doctor":  {Width: 1280, Height: 720, FrameRate: 30, ConnectionTimeout: 10 * time.Second},
			"patient": {Width: 640, Height: 480, FrameRate: 15, ConnectionTimeout: 20 * time.Second},
		}
	}
}

// DefaultICEServers lists public STUN servers plus TURN relays on 80, 443 and 443/tcp
// for networks that block UDP.
func DefaultICEServers() []ICEServer {
	return []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"stun:stun2.l.google.com:19302"}},
		{
			URLs:       []string{"turn:openrelay.metered.ca:80"},
			Username:   "openrelayproject",
			Credential: "openrelayproject",
		},
		{
			URLs:       []string{"turn:openrelay.metered.ca:443"},
			Username:   "openrelayproject",
			Credential: "openrelayproject",
		},
		{
			URLs:       []string{"turn:openrelay.metered.ca:443?transport=tcp"},
			Username:   "openrelayproject",
			Credential: "openrelayproject",
		},
		{
			URLs:       []string{"turn:relay.backups.cz"},
			Username:   "webrtc",
			Credential: "webrtc",
		},
	}
}
