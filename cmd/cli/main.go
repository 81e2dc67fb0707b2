package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	limit     int
)

func main() {
	root := &cobra.Command{
		Use:   "forge-logd-cli",
		Short: "CLI client for the forge-logd ingestion service",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("FORGE_LOGD_API_KEY"), "API key")

	// Send a batch of log events
	sendCmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Send a JSON event batch (file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSend,
	}
	root.AddCommand(sendCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	// List persisted executions
	execsCmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent persisted executions",
		RunE:  runList("/executions"),
	}
	execsCmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows to return")
	root.AddCommand(execsCmd)

	// List dead-lettered payloads
	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "List recent dead-lettered payloads",
		RunE:  runList("/failures"),
	}
	failuresCmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows to return")
	root.AddCommand(failuresCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	var body []byte
	var err error

	if len(args) > 0 {
		body, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
	} else {
		body, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	req, err := http.NewRequest("POST", serverURL+"/logs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d: %s\n", resp.StatusCode, msg)

	if resp.StatusCode != http.StatusCreated {
		os.Exit(1)
	}
	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runList(path string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		req, _ := http.NewRequest("GET", fmt.Sprintf("%s%s?limit=%d", serverURL, path, limit), nil)
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		var result any
		json.NewDecoder(resp.Body).Decode(&result)
		formatted, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(formatted))
		return nil
	}
}
