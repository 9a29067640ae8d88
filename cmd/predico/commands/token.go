package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/predico/internal/auth"
	"github.com/wonny/predico/internal/contracts"
)

// tokenCmd mints bearer tokens for local testing
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "개발용 토큰 발급",
	Long: `JWT_SECRET으로 서명된 bearer 토큰을 발급합니다.

Example:
  go run ./cmd/predico token --role forecaster
  go run ./cmd/predico token --role market_maker --user 7f1c...`,
	RunE: runToken,
}

var (
	tokenUser      string
	tokenRole      string
	tokenSuperuser bool
	tokenTTL       time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "사용자 UUID (기본값: 새 UUID)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(contracts.RoleForecaster), "역할 (forecaster|market_maker|session_manager)")
	tokenCmd.Flags().BoolVar(&tokenSuperuser, "superuser", false, "슈퍼유저")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "토큰 유효 기간")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	caller := contracts.Caller{Role: contracts.Role(tokenRole), Superuser: tokenSuperuser}
	if !caller.Role.Valid() {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	caller.UserID = uuid.New()
	if tokenUser != "" {
		caller.UserID, err = uuid.Parse(tokenUser)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = devJWTSecret
	}
	token, err := auth.NewVerifier(secret, cfg.Auth.Issuer).GenerateToken(caller, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Printf("user: %s\nrole: %s\n\n%s\n", caller.UserID, caller.Role, token)
	return nil
}
