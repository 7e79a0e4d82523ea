package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func idempotencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Manage stored idempotent responses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete idempotency records past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Idempotency.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d idempotency records older than %s\n", n, a.Config.IdempotencyTTL)
			return nil
		},
	})
	return cmd
}
