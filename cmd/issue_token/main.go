package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"meterreader/pkg/auth"
)

func main() {
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("usage: go run ./cmd/issue_token [-ttl 720h] <worker-id>")
		os.Exit(2)
	}
	secret := os.Getenv("JWT_SECRET")
	if strings.TrimSpace(secret) == "" {
		log.Fatal("JWT_SECRET not set in environment")
	}
	token, err := auth.SignWorkerToken([]byte(secret), flag.Arg(0), *ttl)
	if err != nil {
		log.Fatalf("sign failed: %v", err)
	}
	fmt.Println(token)
}
