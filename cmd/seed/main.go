// Seeds the local store with a few reminders in different shapes and prints
// a ready-to-use JWT plus curl steps for poking the API.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/callwhen/callwhen/config"
	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/infrastructure/sqlite"
	"github.com/callwhen/callwhen/internal/timeparse"
)

const seedOwner = "seed-user"

var expressions = []struct {
	when    string
	message string
}{
	// Fires almost immediately; watch the scheduler logs
	{"30s", "seed: quick check-in"},
	{"10m", "seed: take a break"},
	{"tomorrow 9am", "seed: morning review"},
	{"next monday", "seed: weekly planning"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewReminderRepository(db)
	now := time.Now()

	for _, e := range expressions {
		result := timeparse.Parse(e.when, now)
		if !result.Valid {
			log.Fatalf("parse %q: %s", e.when, result.Reason)
		}

		key := fmt.Sprintf("seed:%s", e.when)
		created, err := repo.Create(ctx, &domain.Reminder{
			ID:             domain.NewReminderID(key, now),
			OwnerID:        seedOwner,
			CorrelationKey: key,
			Payload: domain.CallPayload{
				Message: e.message,
				Target:  "+15550001111",
			},
			Status:            domain.StatusDelayed,
			DueAt:             result.At,
			CreatedAt:         now,
			AttemptsRemaining: 1,
		})
		if err != nil {
			log.Fatalf("create %q: %v", e.when, err)
		}
		fmt.Printf("created %-40s due in %s\n", created.ID, timeparse.FormatDelay(result.Delay))
	}

	token, err := seedToken(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	fmt.Println()
	fmt.Println("Try it:")
	fmt.Printf("  export TOKEN=%s\n", token)
	fmt.Printf("  curl -H \"Authorization: Bearer $TOKEN\" localhost:%s/reminders\n", cfg.Port)
	fmt.Printf("  curl -H \"Authorization: Bearer $TOKEN\" localhost:%s/stats\n", cfg.Port)
	fmt.Println()
	fmt.Println("Run the scheduler in another terminal and watch the 30s reminder fire:")
	fmt.Println("  go run ./cmd/scheduler")
}

func seedToken(secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub": seedOwner,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
