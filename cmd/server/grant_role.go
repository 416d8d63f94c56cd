package main

import (
	"time"

	"github.com/spf13/cobra"

	rbacservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/service"
	rbacstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

func newGrantRoleCommand(c *cli) *cobra.Command {
	var (
		grantedBy string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "grant-role PRINCIPAL ROLE",
		Short: "Assign a role to an external subject id",
		Long: "Assign a role to an external subject id. Used to bootstrap the first\n" +
			"administrator; later grants can be made the same way.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			authz, err := rbacservice.New(rbacstore.NewPostgres(db), rbacservice.WithLogger(c.logger))
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			var expiresAt *time.Time
			if expiresIn > 0 {
				t := now.Add(expiresIn)
				expiresAt = &t
			}
			ctx := requestcontext.WithTime(cmd.Context(), now)
			return authz.AssignRole(ctx, args[0], args[1], grantedBy, expiresAt)
		},
	}
	cmd.Flags().StringVar(&grantedBy, "granted-by", "cli", "Recorded as the grantor")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Grant lifetime; zero never expires")
	return cmd
}
