package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "connection",
		Short: "Probe the configured completion endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			defer log.Sync()
			p, err := buildProvider(cfg, log)
			if err != nil {
				return err
			}
			res, err := buildProber(cfg, p, log).Probe(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(sOK.Render("✔ " + res.String()))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models of the first reachable endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			defer log.Sync()
			p, err := buildProvider(cfg, log)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if _, err := buildProber(cfg, p, log).Probe(ctx); err != nil {
				return err
			}
			models, err := p.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				mark := "  "
				switch m {
				case cfg.ConvoModel:
					mark = "c "
				case cfg.SysModel:
					mark = "s "
				}
				fmt.Printf("  %s%s\n", mark, m)
			}
			return nil
		},
	})
}
