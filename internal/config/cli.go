// Package config builds server and client configuration from CLI flags,
// environment variables and, for the nickname, an interactive prompt.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 12345
)

// ServerConfig holds the relay server settings.
type ServerConfig struct {
	Host       string
	Port       int
	LogLevel   string
	Verbose    bool
	LogFile    string
	Advertise  bool
	Instance   string
	SeedGroups []string
}

// NewServerConfig parses flags and environment for the server binary.
func NewServerConfig() *ServerConfig {
	cfg := &ServerConfig{
		Host:     DefaultHost,
		Port:     DefaultPort,
		LogLevel: "INFO",
		Instance: "minichat",
	}

	var seed string
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Address to listen on")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Verbose mode - logs to terminal instead of file")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose mode (shorthand)")
	flag.StringVar(&cfg.LogFile, "logfile", "", "Log file path (auto-generated if not specified)")
	flag.BoolVar(&cfg.Advertise, "mdns", true, "Advertise the server over mDNS")
	flag.StringVar(&cfg.Instance, "service", cfg.Instance, "mDNS instance name")
	flag.StringVar(&seed, "seed-groups", "", "Comma-separated groups to create at startup")
	flag.Parse()

	cfg.loadFromEnv()
	for _, name := range strings.Split(seed, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.SeedGroups = append(cfg.SeedGroups, name)
		}
	}
	if len(cfg.SeedGroups) == 0 {
		cfg.SeedGroups = []string{"L3B"}
	}
	return cfg
}

func (c *ServerConfig) loadFromEnv() {
	if c.Host == DefaultHost {
		if host := os.Getenv("CHAT_HOST"); host != "" {
			c.Host = host
		}
	}
	if c.Port == DefaultPort {
		if portStr := os.Getenv("CHAT_PORT"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				c.Port = port
			}
		}
	}
	if c.LogLevel == "INFO" {
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}
	}
}

// ClientConfig holds the chat client settings.
type ClientConfig struct {
	Nickname   string
	Host       string
	Port       int
	LogLevel   string
	Verbose    bool
	LogFile    string
	UseMDNS    bool
	Transcript string
}

// NewClientConfig parses flags and environment for the client binary and
// prompts for the nickname when none was given.
func NewClientConfig() *ClientConfig {
	cfg := &ClientConfig{
		Host:     DefaultHost,
		Port:     DefaultPort,
		LogLevel: "INFO",
	}

	flag.StringVar(&cfg.Nickname, "nickname", "", "Nickname to claim on the server")
	flag.StringVar(&cfg.Nickname, "n", "", "Nickname to claim (shorthand)")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Server address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Verbose mode - logs to terminal instead of file")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose mode (shorthand)")
	flag.StringVar(&cfg.LogFile, "logfile", "", "Log file path (auto-generated if not specified)")
	flag.BoolVar(&cfg.UseMDNS, "mdns", false, "Discover the server over mDNS instead of host/port")
	flag.StringVar(&cfg.Transcript, "transcript", "", "Append decrypted conversation to this file")
	flag.Parse()

	cfg.loadFromEnv()
	if cfg.Nickname == "" {
		cfg.Nickname = promptNickname()
	}
	if !cfg.Verbose && cfg.LogFile == "" {
		cfg.LogFile = fmt.Sprintf("minichat_%s.log", cfg.Nickname)
	}
	return cfg
}

func (c *ClientConfig) loadFromEnv() {
	if c.Nickname == "" {
		if nick := os.Getenv("CHAT_NICKNAME"); nick != "" {
			c.Nickname = nick
		}
	}
	if c.Host == DefaultHost {
		if host := os.Getenv("CHAT_HOST"); host != "" {
			c.Host = host
		}
	}
	if c.Port == DefaultPort {
		if portStr := os.Getenv("CHAT_PORT"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				c.Port = port
			}
		}
	}
	if c.LogLevel == "INFO" {
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}
	}
}

func promptNickname() string {
	defaultNick := systemUsername()
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("Enter your nickname [%s]: ", defaultNick)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			os.Exit(1)
		}
		nick := strings.TrimSpace(input)
		if nick == "" {
			nick = defaultNick
		}
		if err := ValidateNickname(nick); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid nickname: %v\n", err)
			continue
		}
		return nick
	}
}

// ValidateNickname rejects names the server or the wire format would choke
// on: empty, whitespace, over-long, or colliding with reserved names.
func ValidateNickname(nick string) error {
	if nick == "" {
		return fmt.Errorf("nickname cannot be empty")
	}
	if len(nick) > 20 {
		return fmt.Errorf("nickname too long (max 20 characters)")
	}
	if strings.ContainsAny(nick, " \t\n\r") {
		return fmt.Errorf("nickname cannot contain whitespace")
	}
	if nick == "server" || strings.HasPrefix(nick, "__") {
		return fmt.Errorf("nickname %q is reserved", nick)
	}
	return nil
}

func systemUsername() string {
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	return "anonymous"
}
