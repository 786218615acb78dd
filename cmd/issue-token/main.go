package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/database"
	"github.com/stemsi/examquest-backend/internal/logger"
	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/repository"
	"github.com/stemsi/examquest-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		userID string
		name   string
		check  bool
	)
	flag.StringVar(&userID, "user", "", "Student user ID")
	flag.StringVar(&name, "name", "", "Display name embedded in the token")
	flag.BoolVar(&check, "check", false, "Look up the student's profile before signing")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// stdout carries only the token.
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	// Missing values are prompted for only when a person is at the keyboard.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if userID == "" && interactive {
		userID = prompt("Student user ID: ")
	}
	if userID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(2)
	}
	if name == "" && interactive {
		name = prompt("Display name (optional): ")
	}

	// ─── Optional Profile Lookup ──────────────────────────────────────
	if check {
		ctx := context.Background()
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		profile, err := repository.NewProfileRepository(pool).GetByUserID(ctx, userID)
		pool.Close()
		switch {
		case errors.Is(err, model.ErrNotFound):
			log.Warn().Str("user_id", userID).Msg("No profile yet; one is created on first result")
		case err != nil:
			log.Fatal().Err(err).Msg("Profile lookup failed")
		default:
			log.Info().
				Str("user_id", userID).
				Int("points", profile.Points).
				Int("level", profile.Level).
				Msg("Profile found")
			if name == "" {
				name = profile.DisplayName
			}
		}
	}

	// ─── Sign ──────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).GenerateStudentToken(userID, name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Println(token)
}

func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line)
}
