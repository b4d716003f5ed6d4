package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/phasemux/internal/catalog"
)

func main() {
	if len(os.Args) > 2 {
		fmt.Println("Usage: go run cmd/keygen/main.go [api-key]")
		fmt.Println("Hashes the API key (or a newly generated one) for the bearerAuth middleware")
		os.Exit(1)
	}

	apiKey := "pmx-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(os.Args) == 2 {
		apiKey = os.Args[1]
	}
	keyHash := catalog.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  - name: bearerAuth\n")
	fmt.Printf("    phase: auth\n")
	fmt.Printf("    params:\n")
	fmt.Printf("      key_hashes:\n")
	fmt.Printf("        - \"%s\"\n", keyHash)
}
