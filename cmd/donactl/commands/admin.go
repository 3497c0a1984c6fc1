package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
)

var (
	adminEmail    string
	adminUsername string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		d := repository.Dialect(cfg.DBDriver)
		svc := service.NewClientService(repository.NewClientRepo(db, d), repository.NewAddressRepo(db, d), nil, service.AuthSettings{
			Pepper:     cfg.PasswordPepper,
			BcryptCost: cfg.BcryptCost,
		})
		c, err := svc.Register(cmd.Context(), service.RegisterInput{
			Username: adminUsername,
			Email:    adminEmail,
			Password: adminPassword,
			IsAdmin:  true,
		})
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		Success("administrator created")
		Muted("id=%d username=%s email=%s", c.ID, c.Username, c.Email)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Administrator email")
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "Administrator username")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Administrator password")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAdminCmd)
}
