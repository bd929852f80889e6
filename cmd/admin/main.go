package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]
  ban <user_id>     ban a user; live sessions are closed on their next event
  unban <user_id>   lift a ban
  show <user_id>    print the stored user record
  token <user_id>   issue a /chat credential for a user`

func main() {
	if len(os.Args) != 3 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command, userID := os.Args[1], os.Args[2]

	cfg, _ := config.Load()
	ctx := context.Background()

	var dialector gorm.Dialector
	if cfg.DBDriver == "sqlite" {
		dialector = sqlite.Open(cfg.DBDSN)
	} else {
		dialector = postgres.Open(cfg.DBDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Ban keys live in Redis for the router; without it only the column is updated.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis unavailable (%v), updating database only", err)
		_ = rdb.Close()
		rdb = nil
	}
	cancel()

	storageSvc := storage.NewStorageService(db, rdb)

	switch command {
	case "ban":
		if err := storageSvc.SetBanned(ctx, userID, true); err != nil {
			log.Fatalf("Error banning user: %v", err)
		}
		fmt.Printf("User %s has been banned.\n", userID)
	case "unban":
		if err := storageSvc.SetBanned(ctx, userID, false); err != nil {
			log.Fatalf("Error unbanning user: %v", err)
		}
		fmt.Printf("User %s has been unbanned.\n", userID)
	case "show":
		user, err := storageSvc.GetUser(ctx, userID)
		if err != nil {
			log.Fatalf("Error loading user: %v", err)
		}
		out, _ := json.MarshalIndent(user, "", "  ")
		fmt.Println(string(out))
	case "token":
		if _, err := storageSvc.GetUser(ctx, userID); err != nil {
			log.Fatalf("Error loading user: %v", err)
		}
		token, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL).Issue(userID)
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}
