package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/auth"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/config"
)

func main() {
	subject := flag.String("sub", "attendance-backend", "Token subject")
	admin := flag.Bool("admin", false, "Issue an admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if !cfg.AuthEnabled() {
		fmt.Fprintln(os.Stderr, "Error: AUTH_JWT_SECRET is not set")
		os.Exit(1)
	}

	role := auth.RoleService
	if *admin {
		role = auth.RoleAdmin
	}

	token, err := auth.NewJWTService(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthTokenTTL).GenerateToken(*subject, role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("TOKEN=%s\nROLE=%s\nEXPIRES_IN=%s\n", token, role, cfg.AuthTokenTTL)
}
