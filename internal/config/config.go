package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		GRPCPort string
		LogLevel string
	}
	Deepgram struct {
		APIKey         string
		APIURL         string
		BaseURL        string
		Model          string
		Language       string
		SampleRate     int
		EndpointingMs  int
		UtteranceEndMs int
	}
	Auth struct {
		TokenSecret   string
		TokenTTL      time.Duration
		TokenSkewSecs int
	}
	Turn struct {
		Mode             string
		SilenceNormal    time.Duration
		SilenceUnhurried time.Duration
		RestartDelay     time.Duration
		MaxBackoff       time.Duration
		StartTimeout     time.Duration
		EchoCooldown     time.Duration
		Watchdog         time.Duration
		MinEchoLen       int
		EchoMemory       time.Duration
		RepeatWindow     time.Duration
		Denylist         []string
	}
	Events struct {
		Max int
	}
}

// Flags returns the command-line flags Load understands. Flags override the
// environment when set.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("companion", pflag.ContinueOnError)
	fs.StringP("env", "e", ".env", "Env file path")
	fs.StringP("port", "p", "8080", "HTTP listen port")
	fs.String("grpc-port", "9090", "gRPC health listen port")
	fs.StringP("log", "l", "info", "Log level (debug|info|warn|error)")
	fs.String("mode", "normal", "Default conversation mode (normal|unhurried|dictation)")
	return fs
}

var flagKeys = map[string]string{
	"port":      "server.port",
	"grpc-port": "server.grpc_port",
	"log":       "server.log_level",
	"mode":      "turn.mode",
}

// Load reads configuration from defaults, the environment and fs, in
// increasing precedence. fs may be nil.
func Load(fs *pflag.FlagSet) Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("deepgram.api_url", "https://api.deepgram.com")
	v.SetDefault("deepgram.base_url", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en-US")
	v.SetDefault("deepgram.sample_rate", 16000)
	v.SetDefault("deepgram.endpointing_ms", 300)
	v.SetDefault("deepgram.utterance_end_ms", 1000)

	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.token_skew_secs", 30)

	v.SetDefault("turn.mode", "normal")
	v.SetDefault("turn.silence_normal", "4500ms")
	v.SetDefault("turn.silence_unhurried", "25s")
	v.SetDefault("turn.restart_delay", "250ms")
	v.SetDefault("turn.max_backoff", "10s")
	v.SetDefault("turn.start_timeout", "5s")
	v.SetDefault("turn.echo_cooldown", "5s")
	v.SetDefault("turn.watchdog", "30s")
	v.SetDefault("turn.min_echo_len", 10)
	v.SetDefault("turn.echo_memory", "30s")
	v.SetDefault("turn.repeat_window", "30s")

	v.SetDefault("events.max", 200)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("deepgram.api_url", "DEEPGRAM_API_URL")
	v.BindEnv("deepgram.base_url", "DEEPGRAM_URL")
	v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
	v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")
	v.BindEnv("deepgram.endpointing_ms", "DEEPGRAM_ENDPOINTING_MS")
	v.BindEnv("deepgram.utterance_end_ms", "DEEPGRAM_UTTERANCE_END_MS")

	v.BindEnv("auth.token_secret", "AUTH_TOKEN_SECRET")
	v.BindEnv("auth.token_ttl", "AUTH_TOKEN_TTL")
	v.BindEnv("auth.token_skew_secs", "AUTH_TOKEN_SKEW_SECS")

	v.BindEnv("turn.mode", "TURN_MODE")
	v.BindEnv("turn.silence_normal", "TURN_SILENCE_NORMAL")
	v.BindEnv("turn.silence_unhurried", "TURN_SILENCE_UNHURRIED")
	v.BindEnv("turn.restart_delay", "TURN_RESTART_DELAY")
	v.BindEnv("turn.max_backoff", "TURN_MAX_BACKOFF")
	v.BindEnv("turn.start_timeout", "TURN_START_TIMEOUT")
	v.BindEnv("turn.echo_cooldown", "TURN_ECHO_COOLDOWN")
	v.BindEnv("turn.watchdog", "TURN_WATCHDOG")
	v.BindEnv("turn.min_echo_len", "TURN_MIN_ECHO_LEN")
	v.BindEnv("turn.echo_memory", "TURN_ECHO_MEMORY")
	v.BindEnv("turn.repeat_window", "TURN_REPEAT_WINDOW")
	v.BindEnv("turn.denylist", "TURN_DENYLIST")

	v.BindEnv("events.max", "EVENTS_MAX")

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Deepgram.APIKey = v.GetString("deepgram.api_key")
	c.Deepgram.APIURL = v.GetString("deepgram.api_url")
	c.Deepgram.BaseURL = v.GetString("deepgram.base_url")
	c.Deepgram.Model = v.GetString("deepgram.model")
	c.Deepgram.Language = v.GetString("deepgram.language")
	c.Deepgram.SampleRate = v.GetInt("deepgram.sample_rate")
	c.Deepgram.EndpointingMs = v.GetInt("deepgram.endpointing_ms")
	c.Deepgram.UtteranceEndMs = v.GetInt("deepgram.utterance_end_ms")

	c.Auth.TokenSecret = v.GetString("auth.token_secret")
	c.Auth.TokenTTL = v.GetDuration("auth.token_ttl")
	c.Auth.TokenSkewSecs = v.GetInt("auth.token_skew_secs")

	c.Turn.Mode = v.GetString("turn.mode")
	c.Turn.SilenceNormal = v.GetDuration("turn.silence_normal")
	c.Turn.SilenceUnhurried = v.GetDuration("turn.silence_unhurried")
	c.Turn.RestartDelay = v.GetDuration("turn.restart_delay")
	c.Turn.MaxBackoff = v.GetDuration("turn.max_backoff")
	c.Turn.StartTimeout = v.GetDuration("turn.start_timeout")
	c.Turn.EchoCooldown = v.GetDuration("turn.echo_cooldown")
	c.Turn.Watchdog = v.GetDuration("turn.watchdog")
	c.Turn.MinEchoLen = v.GetInt("turn.min_echo_len")
	c.Turn.EchoMemory = v.GetDuration("turn.echo_memory")
	c.Turn.RepeatWindow = v.GetDuration("turn.repeat_window")
	c.Turn.Denylist = splitList(v.GetString("turn.denylist"))

	c.Events.Max = v.GetInt("events.max")

	slog.Info("config loaded", "port", c.Server.Port, "grpc_port", c.Server.GRPCPort, "deepgram_model", c.Deepgram.Model, "mode", c.Turn.Mode)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }

// splitList parses a "|"-separated list; phrases may contain commas.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
