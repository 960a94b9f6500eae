// run-action executes a registered app action against a running engine.
//
// The payload file is a JSON object passed through to the action. Exits
// non-zero when the file is missing or not valid JSON, or when the engine
// rejects the execution.
//
// Usage: go run ./scripts/run-action -tenant <tenant-id> -action <name> -file payload.json
//
// Flags:
//
//	-tenant  Tenant ID to execute under (required)
//	-action  Action name as registered by the app manifest (required)
//	-file    Path to a JSON payload file (required)
//	-url     Engine base URL (default: http://localhost:8443)
//	-token   Bearer token; defaults to the ENGINE_TOKEN environment variable
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	tenantID := flag.String("tenant", "", "Tenant ID to execute under")
	action := flag.String("action", "", "Action name to execute")
	file := flag.String("file", "", "Path to a JSON payload file")
	baseURL := flag.String("url", "http://localhost:8443", "Engine base URL")
	token := flag.String("token", os.Getenv("ENGINE_TOKEN"), "Bearer token")
	flag.Parse()

	if *tenantID == "" || *action == "" || *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -tenant <tenant-id> -action <name> -file payload.json\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload file: %v\n", err)
		os.Exit(1)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "Payload file is not valid JSON: %v\n", err)
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]any{"payload": payload})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode request: %v\n", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/api/tenants/%s/actions/%s", *baseURL, *tenantID, *action)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(respBody))

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Action execution failed with status %d\n", resp.StatusCode)
		os.Exit(1)
	}
}
