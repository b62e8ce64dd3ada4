// Command cognito registers and logs in users of the configured Cognito app
// client.
//
//	cognito signup -config config.json
//	cognito login -config config.json
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/auth"
	"gwi.com/chatbot-backend/internal/config"
	"gwi.com/chatbot-backend/internal/logging"
	"gwi.com/chatbot-backend/internal/store"
)

// accountFile is the credentials file read by both subcommands.
type accountFile struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	if cmd != "signup" && cmd != "login" {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to the account credentials file")
	fs.Parse(os.Args[2:])

	if err := run(cmd, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(cmd, configPath string) error {
	cfg, err := config.LoadAccounts()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := logging.New(cfg.IsDevelopment(), cfg.LogLevel)

	account, err := readAccount(configPath)
	if err != nil {
		return fmt.Errorf("failed to read account file %s: %w", configPath, err)
	}

	ctx := context.Background()
	client, err := auth.NewCognitoClient(ctx, cfg.CognitoRegion, cfg.CognitoAppClientID, cfg.CognitoAppClientSecret)
	if err != nil {
		return fmt.Errorf("failed to create Cognito client: %w", err)
	}

	if cmd == "login" {
		return login(ctx, client, account, os.Stdout)
	}

	dbStore, err := store.Open(cfg.DatabaseURL, logger.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	return signup(ctx, client, dbStore, account, os.Stdin, os.Stdout, logger)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cognito <signup|login> [-config config.json]")
}

func readAccount(path string) (*accountFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var account accountFile
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("invalid account file: %w", err)
	}
	if account.Username == "" || account.Password == "" {
		return nil, fmt.Errorf("account file needs username and password")
	}
	return &account, nil
}

func login(ctx context.Context, client *auth.CognitoClient, account *accountFile, out io.Writer) error {
	tokens, err := client.Login(ctx, account.Username, account.Password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Login successful!")
	fmt.Fprintln(out, "Access Token:", tokens.AccessToken)
	fmt.Fprintln(out, "ID Token:", tokens.IDToken)
	fmt.Fprintf(out, "Expires in: %ds\n", tokens.ExpiresIn)
	return nil
}

// signup registers the account, confirms it with the code read from in and
// records the user row.
func signup(ctx context.Context, client *auth.CognitoClient, dbStore *store.Store, account *accountFile, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	sub, err := client.SignUp(ctx, auth.SignUpParams{
		Username:   account.Username,
		Password:   account.Password,
		Email:      account.Email,
		GivenName:  account.GivenName,
		FamilyName: account.FamilyName,
	})
	if err != nil {
		return err
	}
	logger.Info().Str("username", account.Username).Str("sub", sub).Msg("user signed up")

	fmt.Fprintln(out, "Check your email/SMS for the confirmation code.")
	fmt.Fprint(out, "Enter confirmation code: ")
	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read confirmation code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("confirmation code is required")
	}

	if err := client.ConfirmSignUp(ctx, account.Username, code); err != nil {
		return err
	}

	user := store.User{CognitoSub: sub}
	if account.Email != "" {
		user.Email = &account.Email
	}
	if account.GivenName != "" {
		user.FirstName = &account.GivenName
	}
	if account.FamilyName != "" {
		user.LastName = &account.FamilyName
	}
	err = dbStore.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.GetUserByCognitoSub(ctx, sub)
		if err != nil || existing != nil {
			return err
		}
		return tx.CreateUser(ctx, &user)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "User confirmed: %s\n", sub)
	return nil
}
