package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"aspire-sync/internal/config"
	"aspire-sync/pkg/utils"
)

// Issues an API token for the sync endpoints. Intended for operators and
// service integrations.
func main() {
	userID := flag.String("user", "ops", "subject for the issued token")
	roles := flag.String("roles", "admin", "comma-separated role list")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.SetSecret(cfg.JWTSecret)

	token, err := utils.GenerateToken(*userID, strings.Split(*roles, ","))
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Println(token)
}
