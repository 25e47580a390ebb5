// cmd/gentoken prints a bearer token for local testing.
// Usage: go run ./cmd/gentoken -user <uuid> -perms cash_register.operate,commissions.manage
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"clinicpos/internal/config"
	"clinicpos/internal/middleware"
	"clinicpos/internal/model"

	"github.com/google/uuid"
)

func main() {
	user := flag.String("user", "", "user id (random when empty)")
	perms := flag.String("perms", strings.Join([]string{
		model.CapOperateCashRegister, model.CapManageCashRegister, model.CapManageCommissions,
	}, ","), "comma-separated permissions")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	id := uuid.New()
	if *user != "" {
		if id, err = uuid.Parse(*user); err != nil {
			fmt.Fprintln(os.Stderr, "invalid -user:", err)
			os.Exit(1)
		}
	}

	var list []string
	for _, p := range strings.Split(*perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}

	token, err := middleware.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, id, list, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
