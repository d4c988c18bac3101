package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"palcro/internal/dto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "issue":
		err = runIssue(args)
	case "validate":
		err = runValidate(args)
	case "revoke":
		err = runRevoke(args)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  issue      Issue a new license key (admin token required)")
	fmt.Fprintln(os.Stderr, "  validate   Validate a key against a hardware id")
	fmt.Fprintln(os.Stderr, "  revoke     Revoke a key (admin token required)")
	os.Exit(2)
}

func runIssue(args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	baseURL := fs.String("base-url", envOr("LICENSED_BASE_URL", "http://localhost:8083"), "service base URL")
	token := fs.String("token", os.Getenv("LICENSED_ADMIN_TOKEN"), "admin bearer token")
	validity := fs.Duration("validity", 0, "validity window (default: server default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("admin token required (-token or LICENSED_ADMIN_TOKEN)")
	}

	req := dto.IssueRequest{}
	if *validity > 0 {
		req.ValiditySeconds = int64(validity.Seconds())
	}

	var res dto.IssueResponse
	if err := call(*baseURL, "/v1/license/issue", *token, req, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	baseURL := fs.String("base-url", envOr("LICENSED_BASE_URL", "http://localhost:8083"), "service base URL")
	key := fs.String("key", "", "license key")
	hwid := fs.String("hwid", "", "hardware id to present")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" || *hwid == "" {
		return fmt.Errorf("both -key and -hwid are required")
	}

	var res dto.ValidateResponse
	if err := call(*baseURL, "/v1/license/validate", "", dto.ValidateRequest{Key: *key, HardwareID: *hwid}, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func runRevoke(args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	baseURL := fs.String("base-url", envOr("LICENSED_BASE_URL", "http://localhost:8083"), "service base URL")
	token := fs.String("token", os.Getenv("LICENSED_ADMIN_TOKEN"), "admin bearer token")
	key := fs.String("key", "", "license key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("admin token required (-token or LICENSED_ADMIN_TOKEN)")
	}
	if *key == "" {
		return fmt.Errorf("-key is required")
	}

	var res dto.RevokeResponse
	if err := call(*baseURL, "/v1/license/revoke", *token, dto.RevokeRequest{Key: *key}, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func call(baseURL, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	hc := &http.Client{Timeout: 15 * time.Second}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close response body: %v\n", cerr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// A denied validation still carries a JSON body worth showing.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusForbidden {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("request failed: %s", msg)
	}

	return json.Unmarshal(data, out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
