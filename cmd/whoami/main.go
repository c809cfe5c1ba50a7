package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lithammer/dedent"

	"github.com/burkido/medai-client-go/config"
	"github.com/burkido/medai-client-go/medai"
	"github.com/burkido/medai-client-go/session"
)

var usage = dedent.Dedent(`
	whoami prints the authenticated user's profile.

	With -email and -password it logs in first and stores the session;
	without them it reuses the stored session.

	Required environment: MEDAI_TOKEN_KEY (session encryption passphrase).
	Optional: MEDAI_BASE_URL, MEDAI_PACKAGE_NAME, MEDAI_DB_PATH.
`)

func main() {
	var email, password string
	flag.StringVar(&email, "email", "", "Account email (log in instead of reusing the stored session)")
	flag.StringVar(&password, "password", "", "Account password")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	encryptionKey, err := session.DeriveKey(cfg.TokenKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error deriving encryption key: %v\n", err)
		os.Exit(1)
	}

	store, err := session.NewSQLiteStore(cfg.DBPath, encryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session store at %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	client := medai.NewClient(medai.ClientOpts{
		BaseURL:     cfg.BaseURL,
		PackageName: cfg.PackageName,
		Store:       store,
		OnSessionInvalid: func() {
			fmt.Fprintln(os.Stderr, "Session expired, log in again with -email and -password")
		},
	})

	ctx := context.Background()

	if email != "" {
		if password == "" {
			fmt.Fprintln(os.Stderr, "-password is required with -email")
			os.Exit(1)
		}
		if _, err := client.Login(ctx, email, password); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}
	} else if !client.Active() {
		fmt.Fprintln(os.Stderr, "No stored session, log in with -email and -password")
		os.Exit(1)
	}

	user, err := client.Me(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ID:        %s\n", user.ID)
	fmt.Printf("Email:     %s\n", user.Email)
	fmt.Printf("Name:      %s\n", user.FullName)
	fmt.Printf("Credit:    %d\n", user.Credit)
	fmt.Printf("Premium:   %t\n", user.IsPremium)
	fmt.Printf("Verified:  %t\n", user.IsVerified)
}
