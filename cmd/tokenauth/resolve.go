package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/devmarvs/tokenauth/entity"
	"github.com/devmarvs/tokenauth/settings"
)

func resolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <principal-type>...",
		Short: "Print the param and header names of principal types",
		Long: `Resolve derives the token and identifier param names, header names and
identifier field of each principal type, applying the header_names
overrides of the loaded config.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			registry := settings.FromConfig(cfg, settings.WithLogger(newLogger(cmd, cfg)))

			entities := make([]entity.Entity, 0, len(args))
			for _, name := range args {
				ent, err := registry.Resolve(name)
				if err != nil {
					return err
				}
				entities = append(entities, ent)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if len(entities) == 1 {
				return encoder.Encode(entities[0])
			}
			return encoder.Encode(entities)
		},
	}
}
