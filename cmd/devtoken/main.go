package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cafe-pos/register/internal/auth"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// devtoken mints a staff token for local testing of the register API and the
// event feed. Production tokens come from the POS backend.
func main() {
	// CLI flags
	userID := flag.Int64("user", 0, "Staff usuarioId")
	name := flag.String("name", "", "Staff display name")
	role := flag.String("role", "", "OWNER, MANAGER, CASHIER or KITCHEN")
	ttl := flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("ignoring unreadable .env file")
	}

	// Fall back to environment variables
	if *userID == 0 {
		if v, err := strconv.ParseInt(os.Getenv("DEVTOKEN_USER"), 10, 64); err == nil {
			*userID = v
		}
	}
	if *name == "" {
		*name = os.Getenv("DEVTOKEN_NAME")
	}
	if *role == "" {
		*role = os.Getenv("DEVTOKEN_ROLE")
	}

	// Fall back to defaults
	if *userID == 0 {
		*userID = 1
	}
	if *name == "" {
		*name = "Caja Dev"
	}
	if *role == "" {
		*role = enum.UserRoleCashier
	}

	switch *role {
	case enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier, enum.UserRoleKitchen:
	default:
		logrus.WithField("role", *role).Fatal("unknown role")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-in-production"
		logrus.Warn("JWT_SECRET not set, signing with the development default")
	}

	token, err := auth.GenerateToken(secret, *userID, *name, *role, *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("failed to sign token")
	}

	logrus.WithFields(logrus.Fields{"usuario_id": *userID, "role": *role, "expires_in": ttl.String()}).Info("token issued")
	fmt.Println(token)
}
