// Command useradd creates a user account that can sign in to the booking
// API.  It reads the same environment as the server.
//
//	useradd --email ana@example.com --password s3cret
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/hotel-room-booking/internal/config"
	"github.com/iliyamo/hotel-room-booking/internal/database"
	"github.com/iliyamo/hotel-room-booking/internal/repository"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var email, password string
	flagSet := pflag.NewFlagSet("useradd", pflag.ContinueOnError)
	flagSet.StringVar(&email, "email", "", "account email (required)")
	flagSet.StringVar(&password, "password", "", "account password (required)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := repository.NewUserRepo(db).Create(ctx, email, password, cfg.BcryptCost)
	if err != nil {
		return err
	}
	fmt.Printf("created user %d (%s)\n", id, email)
	return nil
}
