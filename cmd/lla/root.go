package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/llakit/lla/config"
	"github.com/llakit/lla/plugin"
	"github.com/llakit/lla/protocol"
)

func newRootCommand() *cobra.Command {
	var (
		configPath string
		longFormat bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "lla [directory]",
		Short:   "lla - a file lister with a plugin runtime",
		Long:    "lla lists directories and lets plugins decorate each entry\nwith extra fields such as git status or directory sizes.",
		Version: plugin.Version,
		Args:    cobra.MaximumNArgs(1),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			app, err := newApp(configPath, verbose)
			if err != nil {
				return err
			}
			defer app.close()

			format := app.cfg.DefaultFormat
			if longFormat {
				format = "long"
			}
			return app.list(cmd, dir, format)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "use the long listing format")

	rootCmd.AddCommand(
		newPluginCommand(&configPath, &verbose),
		newListPluginsCommand(&configPath, &verbose),
		newEnablePluginCommand(&configPath, &verbose),
		newDisablePluginCommand(&configPath, &verbose),
		newCleanCommand(&configPath, &verbose),
	)
	return rootCmd
}

// app bundles the loaded configuration and plugin manager behind every
// subcommand.
type app struct {
	cfg     *config.Config
	manager *plugin.Manager
	log     *logrus.Logger
}

func newApp(configPath string, verbose bool) (*app, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	manager, err := plugin.NewManager(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := manager.Discover(cfg.PluginsDir); err != nil {
		_ = manager.Close()
		return nil, err
	}
	return &app{cfg: cfg, manager: manager, log: log}, nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		a.log.Warnf("failed to close plugin manager: %v", err)
	}
}

// list prints one line per directory entry, decorated by whatever plugins
// are enabled for the chosen format.
func (a *app) list(cmd *cobra.Command, dir, format string) error {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name() < dirEntries[j].Name()
	})

	entries := make([]protocol.DecoratedEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		path := filepath.Join(dir, de.Name())
		info, err := os.Lstat(path)
		if err != nil {
			a.log.Warnf("failed to stat %s: %v", path, err)
			continue
		}
		entries = append(entries, protocol.DecoratedEntry{
			Path:     path,
			Metadata: entryMetadata(info),
		})
	}

	a.manager.DecorateEntriesBatch(entries, format)

	out := cmd.OutOrStdout()
	for i := range entries {
		line := renderEntry(&entries[i], format)
		if fields := a.manager.FormatFields(&entries[i], format); len(fields) > 0 {
			line += " " + strings.Join(fields, " ")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func renderEntry(entry *protocol.DecoratedEntry, format string) string {
	name := filepath.Base(entry.Path)
	if format != "long" {
		return name
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %8d %s", permString(entry.Metadata), entry.Metadata.Size, name)
	if len(entry.CustomFields) > 0 {
		keys := make([]string, 0, len(entry.CustomFields))
		for k := range entry.CustomFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%s", k, entry.CustomFields[k])
		}
	}
	return sb.String()
}

func permString(md protocol.EntryMetadata) string {
	kind := "-"
	switch {
	case md.IsSymlink:
		kind = "l"
	case md.IsDir:
		kind = "d"
	}
	return kind + fs.FileMode(md.Permissions).Perm().String()[1:]
}
