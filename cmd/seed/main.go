package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"quiz-payment-relay/internal/config"
	pg "quiz-payment-relay/internal/infra/db/postgres"
)

// Seeds a few quiz categories for local testing of the payment flow.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	var existing int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_categories;`).Scan(&existing); err != nil {
		log.Fatalf("count categories: %v", err)
	}
	if existing > 0 {
		fmt.Printf("%d categories already present. No changes.\n", existing)
		return
	}

	seed := []struct {
		ID    string
		Name  string
		Type  string
		Price int64
	}{
		{"cat-free-intro", "Intro Quiz", "free", 0},
		{"cat-math", "Advanced Math", "paid", 50_000},
		{"cat-physics", "Physics Mastery", "paid", 75_000},
	}

	for _, s := range seed {
		_, err := pool.Exec(ctx,
			`INSERT INTO quiz_categories (id, name, quiz_type, price_amount) VALUES ($1,$2,$3,$4);`,
			s.ID, s.Name, s.Type, s.Price)
		if err != nil {
			log.Fatalf("seed category %s: %v", s.ID, err)
		}
		fmt.Printf("seeded %s (%s, price=%d)\n", s.Name, s.Type, s.Price)
	}
}
