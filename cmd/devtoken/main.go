// Command devtoken mints bearer tokens signed with JWT_SECRET for local
// testing, and hashes admin API keys for ADMIN_API_KEY_HASH.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pixelforge/internal/config"
	"pixelforge/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	userID := flag.String("user", "dev-user", "user id placed in the token")
	email := flag.String("email", "dev@example.com", "email claim")
	name := flag.String("name", "Dev User", "name claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	hashKey := flag.String("hash-admin-key", "", "print the bcrypt hash of this admin API key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashKey), bcrypt.DefaultCost)
		if err != nil {
			logrus.Fatalf("failed to hash key: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	token, err := utils.GenerateJWT(utils.Claims{UserID: *userID, Email: *email, Name: *name}, cfg.JWTSecret, *ttl)
	if err != nil {
		logrus.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
