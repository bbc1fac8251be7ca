package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/seanblong/relatedwork/internal/auth"
	"github.com/seanblong/relatedwork/internal/config"
)

func main() {
	fs := pflag.NewFlagSet("relatedwork-token", pflag.ExitOnError)
	subject := fs.String("subject", "", "Subject (caller name) embedded in the token")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "--subject is required")
		fs.Usage()
		os.Exit(2)
	}

	// Issuing only needs the secret, so the API's enabled switch is ignored.
	a, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.TokenTTL, true)
	if err != nil {
		log.Fatalf("Failed to configure auth: %v", err)
	}
	token, err := a.Issue(*subject)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
