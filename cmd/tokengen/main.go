// Package main provides a CLI tool for minting device credentials for the
// presence gateway. Tokens signed with the dev key will NOT work against a
// production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"presence/internal/token"
	"presence/pkg/secrets"
)

const (
	// Dev signing key - matches config.go when PRESENCE_JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer = "presence"
	defaultTTL    = 24 * time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

type apiKeyOutput struct {
	Key   string            `json:"key"`
	Hash  string            `json:"hash"`
	Usage map[string]string `json:"usage"`
}

func main() {
	deviceCmd := flag.NewFlagSet("device", flag.ExitOnError)
	apikeyCmd := flag.NewFlagSet("apikey", flag.ExitOnError)

	deviceID := deviceCmd.String("device-id", "", "Device identifier, e.g. kiosk-entrance-01 (required)")
	deviceKey := deviceCmd.String("signing-key", devSigningKey, "JWT signing key")
	deviceIssuer := deviceCmd.String("issuer", defaultIssuer, "Token issuer")
	deviceTTL := deviceCmd.Duration("ttl", defaultTTL, "Token time-to-live")
	deviceJSON := deviceCmd.Bool("json", false, "Output as JSON")

	apikeyJSON := apikeyCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "device":
		deviceCmd.Parse(os.Args[2:])
		generateDeviceToken(*deviceID, *deviceKey, *deviceIssuer, *deviceTTL, *deviceJSON)
	case "apikey":
		apikeyCmd.Parse(os.Args[2:])
		generateAPIKey(*apikeyJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Mint credentials for the presence gateway

Usage:
  tokengen <command> [flags]

Commands:
  device    Issue a device JWT for the verification endpoints
  apikey    Generate an operator API key and its bcrypt hash

Examples:
  # Issue a token for a kiosk with the dev signing key
  tokengen device -device-id kiosk-entrance-01

  # Issue a token against a production signing key with a short TTL
  tokengen device -device-id kiosk-entrance-01 -signing-key "$KEY" -ttl 1h

  # Generate an operator key; store the hash in PRESENCE_ENROLL_API_KEY_HASH
  tokengen apikey

Use "tokengen <command> -h" for more information about a command.`)
}

func generateDeviceToken(deviceID, signingKey, issuer string, ttl time.Duration, jsonOutput bool) {
	if deviceID == "" {
		fmt.Fprintln(os.Stderr, "-device-id is required")
		os.Exit(1)
	}

	svc := token.NewService(signingKey, issuer, ttl)

	signed, err := svc.Issue(deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error issuing token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     signed,
			Type:      "device_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"device_id": deviceID,
				"iss":       issuer,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Device Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Device ID:  %s\n", deviceID)
	fmt.Printf("Issuer:     %s\n", issuer)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(signed)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/verify")
}

func generateAPIKey(jsonOutput bool) {
	key, err := secrets.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}

	hash, err := secrets.Hash(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing key: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(apiKeyOutput{
			Key:  key,
			Hash: hash,
			Usage: map[string]string{
				"header": "X-API-Key: <key>",
				"env":    "PRESENCE_ENROLL_API_KEY_HASH=<hash>",
			},
		})
		return
	}

	fmt.Println("Operator API Key")
	fmt.Println("================")
	fmt.Printf("Key:  %s\n", key)
	fmt.Printf("Hash: %s\n", hash)
	fmt.Println()
	fmt.Println("Give the key to the operator. Put only the hash in the server")
	fmt.Println("environment:")
	fmt.Println("  PRESENCE_ENROLL_API_KEY_HASH=<hash>")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
