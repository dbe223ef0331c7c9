package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"quorum/internal/config"
	"quorum/pkg/sdk"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	var (
		cfgPath string
		baseURL string
		apiKey  string
		asJSON  bool
	)

	root := &cobra.Command{
		Use:           "quorum",
		Short:         "Quorum forum node with saved-search notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base API URL for CLI commands (defaults to QUORUM_URL or http://localhost:8080)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for CLI commands (defaults to QUORUM_API_KEY)")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON output")

	root.AddCommand(newInitCommand(&cfgPath))
	root.AddCommand(newMigrateCommand(&cfgPath))
	root.AddCommand(newServerCommand(&cfgPath))
	root.AddCommand(newMCPCommand(&cfgPath, &apiKey))
	root.AddCommand(newNotifyCommand(&cfgPath))
	root.AddCommand(newUsersCommand(&baseURL, &apiKey, &asJSON))
	root.AddCommand(newSavedSearchesCommand(&baseURL, &apiKey, &asJSON))
	root.AddCommand(newSearchCommand(&baseURL, &apiKey, &asJSON))
	root.AddCommand(newAdminCommand(&baseURL, &apiKey))
	return root
}

func loadConfigMaybe(path string) (config.Config, error) {
	if path == "" {
		return config.Load("")
	}
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	} else if errors.Is(err, os.ErrNotExist) {
		return config.Load("")
	} else {
		return config.Config{}, err
	}
}

func newClient(baseURL, apiKey string) *sdk.Client {
	return sdk.New(sdk.Config{BaseURL: baseURL, APIKey: apiKey})
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
