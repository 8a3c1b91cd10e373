package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginCommand(configPath *string, verbose *bool) *cobra.Command {
	var (
		name   string
		action string
	)

	cmd := &cobra.Command{
		Use:   "plugin --name <plugin> [--action <action> [-- args...]]",
		Short: "Invoke a plugin action, or list a plugin's actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer app.close()

			if action == "" {
				actions, err := app.manager.AvailableActions(name)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(actions) == 0 {
					fmt.Fprintf(out, "plugin %s exposes no actions\n", name)
					return nil
				}
				for _, a := range actions {
					fmt.Fprintf(out, "%s\t%s\n", a.Name, a.Description)
					if a.Usage != "" {
						fmt.Fprintf(out, "  usage: %s\n", a.Usage)
					}
					for _, ex := range a.Examples {
						fmt.Fprintf(out, "  example: %s\n", ex)
					}
				}
				return nil
			}

			return app.manager.PerformPluginAction(name, action, args)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "plugin name")
	cmd.Flags().StringVar(&action, "action", "", "action to invoke")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newListPluginsCommand(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list-plugins",
		Short: "Show every installed plugin with its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer app.close()

			out := cmd.OutOrStdout()
			for _, info := range app.manager.ListPlugins() {
				state := "disabled"
				if info.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(out, "%s %s (%s) - %s\n", info.Name, info.Version, state, info.Description)
				if !info.Health.IsHealthy {
					fmt.Fprintf(out, "  unhealthy: %s\n", info.Health.LastError)
				}
			}
			return nil
		},
	}
}

func newEnablePluginCommand(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "enable-plugin <name>",
		Short: "Enable an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer app.close()
			return app.manager.EnablePlugin(args[0])
		},
	}
}

func newDisablePluginCommand(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "disable-plugin <name>",
		Short: "Disable an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer app.close()
			return app.manager.DisablePlugin(args[0])
		},
	}
}

func newCleanCommand(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove plugin files that fail validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer app.close()
			return app.manager.Clean()
		},
	}
}
