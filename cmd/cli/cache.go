package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"therapist-effects/internal/container"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached study artifacts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached artifact keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				keys, err := c.Cache.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				keys, err := c.Cache.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, key := range keys {
					if err := c.Cache.Delete(cmd.Context(), key); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached artifacts\n", len(keys))
				return nil
			})
		},
	})
	return cmd
}
