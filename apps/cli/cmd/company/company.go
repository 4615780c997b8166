package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	companiesrepo "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/repo"
	companiesservice "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/persistence"
)

// Command groups company registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Company utilities",
	}

	cmd.AddCommand(createCommand())
	return cmd
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		name        string
		owner       string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a company for an owner; prints the existing one when the owner already has a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			store, err := persistence.NewCompanyStore(ctx, pool, schema)
			if err != nil {
				return fmt.Errorf("init company store: %w", err)
			}
			svc := companiesservice.New(companiesrepo.NewPostgresRepository(store))

			company, err := svc.Create(ctx, companiesservice.CreateInput{Name: name, OwnerUserID: owner})
			if errors.Is(err, companiesservice.ErrConflictOwner) {
				company, err = svc.GetByOwner(ctx, owner)
				if err != nil {
					return fmt.Errorf("company exists but could not fetch: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Company already exists: %s (%s)\n", company.Name, company.ID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("create company: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Company created: %s (%s)\n", company.Name, company.ID)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", "qbsync", "Schema holding the companies table")
	c.Flags().StringVar(&name, "name", "", "Company display name")
	c.Flags().StringVar(&owner, "owner-user-id", "", "Identity provider user id of the owner")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("owner-user-id")

	return c
}
