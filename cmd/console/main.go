package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

const usage = `Usage: console [seed.yaml | session-id]

With a seed file a new session is created. With a session id that session is
resumed. With no argument the saved sessions are listed.`

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    30 * time.Second,
	}
	api := newAPIClient(cfg)

	if !api.testConnection() {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	var opts []uiOption
	if len(os.Args) > 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if len(os.Args) == 2 {
		arg := os.Args[1]
		if arg == "-h" || arg == "--help" {
			fmt.Println(usage)
			return
		}
		if id, err := uuid.Parse(arg); err == nil {
			opts = append(opts, withSession(id))
		} else {
			seed, err := loadSeed(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load seed: %v\n", err)
				os.Exit(1)
			}
			opts = append(opts, withSeed(seed))
		}
	}

	p := tea.NewProgram(NewConsoleUI(api, opts...),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func loadSeed(path string) (*prompts.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed prompts.Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	if seed.WorldContext == "" {
		return nil, fmt.Errorf("worldContext is required")
	}
	seed.Settings = seed.Settings.WithDefaults()
	return &seed, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
