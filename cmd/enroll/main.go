// Package main provides an operator CLI for managing enrolled subjects on a
// running presence gateway. It talks to the operator endpoints with the
// X-API-Key header; mint a key with "tokengen apikey".
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const requestTimeout = 30 * time.Second

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)

	addServer := addCmd.String("server", "http://localhost:8080", "Gateway base URL")
	addKey := addCmd.String("api-key", os.Getenv("PRESENCE_ENROLL_API_KEY"), "Operator API key")
	addSubject := addCmd.String("subject", "", "Subject identifier (required)")
	addImage := addCmd.String("image", "", "Path to a reference photo (required)")

	listServer := listCmd.String("server", "http://localhost:8080", "Gateway base URL")
	listKey := listCmd.String("api-key", os.Getenv("PRESENCE_ENROLL_API_KEY"), "Operator API key")

	removeServer := removeCmd.String("server", "http://localhost:8080", "Gateway base URL")
	removeKey := removeCmd.String("api-key", os.Getenv("PRESENCE_ENROLL_API_KEY"), "Operator API key")
	removeSubject := removeCmd.String("subject", "", "Subject identifier (required)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *addSubject == "" || *addImage == "" {
			fmt.Fprintln(os.Stderr, "-subject and -image are required")
			os.Exit(1)
		}
		enroll(*addServer, *addKey, *addSubject, *addImage)
	case "list":
		listCmd.Parse(os.Args[2:])
		listSubjects(*listServer, *listKey)
	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *removeSubject == "" {
			fmt.Fprintln(os.Stderr, "-subject is required")
			os.Exit(1)
		}
		remove(*removeServer, *removeKey, *removeSubject)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`enroll - Manage enrolled subjects on a presence gateway

Usage:
  enroll <command> [flags]

Commands:
  add       Enroll a subject from a reference photo
  list      List enrolled subjects
  remove    Remove a subject and all their references

The API key comes from -api-key or the PRESENCE_ENROLL_API_KEY
environment variable.

Examples:
  enroll add -subject alice -image alice.jpg
  enroll list
  enroll remove -subject alice

Use "enroll <command> -h" for more information about a command.`)
}

func enroll(server, apiKey, subject, imagePath string) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading image: %v\n", err)
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]string{
		"subject_id": subject,
		"image":      base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}

	resp := do(http.MethodPost, server+"/enroll", apiKey, bytes.NewReader(body))
	if resp.StatusCode != http.StatusCreated {
		fail(resp)
	}

	var out struct {
		ReferenceID string `json:"reference_id"`
		Faces       int    `json:"faces_detected"`
		Dimension   int    `json:"embedding_dimension"`
	}
	decode(resp, &out)

	fmt.Printf("Enrolled %s\n", subject)
	fmt.Printf("  Reference ID: %s\n", out.ReferenceID)
	fmt.Printf("  Faces:        %d\n", out.Faces)
	fmt.Printf("  Dimension:    %d\n", out.Dimension)
}

func listSubjects(server, apiKey string) {
	resp := do(http.MethodGet, server+"/enroll/subjects", apiKey, nil)
	if resp.StatusCode != http.StatusOK {
		fail(resp)
	}

	var out struct {
		Subjects []string `json:"subjects"`
	}
	decode(resp, &out)

	if len(out.Subjects) == 0 {
		fmt.Println("No subjects enrolled")
		return
	}
	for _, s := range out.Subjects {
		fmt.Println(s)
	}
}

func remove(server, apiKey, subject string) {
	resp := do(http.MethodDelete, server+"/enroll/"+subject, apiKey, nil)
	if resp.StatusCode != http.StatusOK {
		fail(resp)
	}

	var out struct {
		Removed int `json:"removed"`
	}
	decode(resp, &out)

	fmt.Printf("Removed %s (%d references)\n", subject, out.Removed)
}

func do(method, url, apiKey string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-API-Key", apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	return resp
}

func decode(resp *http.Response, v any) {
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n", err)
		os.Exit(1)
	}
}

func fail(resp *http.Response) {
	defer resp.Body.Close() //nolint:errcheck // read-only body
	var out struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Error == "" {
		fmt.Fprintf(os.Stderr, "Server returned %s\n", resp.Status)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Server returned %s: %s (%s)\n", resp.Status, out.Description, out.Error)
	os.Exit(1)
}
