// Command terminal-token issues a signed terminal token for a staff member
// at a POS terminal.  The secret comes from JWT_SECRET (a .env file is
// honoured).
//
//	terminal-token -staff s-17 -terminal bar-2 -ttl 12h
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/pos-engine/internal/utils"
)

func main() {
	staff := flag.String("staff", "", "staff id (token subject)")
	terminal := flag.String("terminal", "", "terminal id")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(2)
	}

	tok, err := utils.NewTerminalToken(secret, *staff, *terminal, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
		"token":      tok.Token,
		"expires_at": tok.Exp.Format(time.RFC3339),
	})
}
