// Command sessionkit-probe drives one full session lifecycle against a live
// backend: sign in (or sign up), inspect the session, force a refresh, and
// sign out. It is a smoke tool for backend deployments, not a load generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	sessionkit "github.com/sessionkit/sessionkit"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		baseURL     = flag.String("base-url", "", "backend base URL (required)")
		email       = flag.String("email", "", "account email (required)")
		password    = flag.String("password", "", "account password (required)")
		signUp      = flag.Bool("signup", false, "register the account instead of signing in")
		storageFile = flag.String("storage-file", "", "persist the refresh token to this file")
		redisAddr   = flag.String("redis-addr", "", "persist the refresh token to redis at this address")
		timeout     = flag.Duration("timeout", 30*time.Second, "overall probe deadline")
		jsonEvents  = flag.Bool("json-events", false, "write auth state events as JSON lines to stdout")
	)
	flag.Parse()

	if *baseURL == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "base-url, email, and password are required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	builder := sessionkit.New(*baseURL)
	switch {
	case *storageFile != "":
		builder.WithFileStorage(*storageFile)
	case *redisAddr != "":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{*redisAddr},
		})
		defer func() { _ = client.Close() }()
		builder.WithRedisStorage(client, "sessionkit-probe", 0)
	}
	if *jsonEvents {
		builder.WithEventSink(sessionkit.NewJSONWriterSink(os.Stdout))
	}

	client, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	restored, err := client.IsAuthenticatedAsync(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	if restored {
		fmt.Println("session restored from storage")
	} else if *signUp {
		result, err := client.SignUpEmailPassword(ctx, *email, *password, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign-up failed: %v\n", err)
			os.Exit(1)
		}
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "sign-up rejected: %s (status %d)\n", result.Error.Message, result.Error.Status)
			os.Exit(1)
		}
		if result.Session == nil {
			fmt.Println("sign-up accepted; verify the email address, then sign in")
			return
		}
		fmt.Println("signed up")
	} else {
		result, err := client.SignInEmailPassword(ctx, *email, *password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
			os.Exit(1)
		}
		if result.MFA != nil {
			fmt.Fprintf(os.Stderr, "account requires MFA (ticket %s); probe does not carry a TOTP secret\n", result.MFA.Ticket)
			os.Exit(1)
		}
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "sign-in rejected: %s (status %d)\n", result.Error.Message, result.Error.Status)
			os.Exit(1)
		}
		fmt.Println("signed in")
	}

	printSession(client.GetSession())

	start := time.Now()
	refresh, err := client.RefreshSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
		os.Exit(1)
	}
	if refresh.Error != nil {
		fmt.Fprintf(os.Stderr, "refresh rejected: %s (status %d)\n", refresh.Error.Message, refresh.Error.Status)
		os.Exit(1)
	}
	fmt.Printf("refreshed in %s\n", time.Since(start).Round(time.Millisecond))
	printSession(refresh.Session)

	signOut, err := client.SignOut(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-out failed: %v\n", err)
		os.Exit(1)
	}
	if signOut.Error != nil {
		fmt.Fprintf(os.Stderr, "sign-out rejected: %s (status %d)\n", signOut.Error.Message, signOut.Error.Status)
		os.Exit(1)
	}
	fmt.Println("signed out")
}

func printSession(s *sessionkit.Session) {
	if s == nil {
		fmt.Println("no session")
		return
	}
	userID := ""
	if s.User != nil {
		userID = s.User.ID
	}
	fmt.Printf("session: user=%s access_expires_in=%ds refresh_token_len=%d\n", userID, s.AccessTokenExpiresIn, len(s.RefreshToken))
}
