package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/config"
)

// --- bindings ---

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List bindings known to the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		infos, err := client.listBindings(cmd.Context())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No bindings configured.")
			return nil
		}
		return writeBindings(os.Stdout, infos)
	},
}

func writeBindings(w io.Writer, infos []binding.Info) error {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Key,
			string(info.Kind),
			info.Category,
			displayValue(info),
			bindingTarget(info),
		})
	}
	return printTable(w, []string{"KEY", "KIND", "CATEGORY", "VALUE", "PATH"}, rows)
}

func displayValue(info binding.Info) string {
	if info.Value == nil {
		return "-"
	}
	return *info.Value
}

func bindingTarget(info binding.Info) string {
	switch {
	case !info.Supported:
		return "(unsupported)"
	case info.MultiFile && len(info.Paths) > 1:
		return fmt.Sprintf("%s (+%d)", info.Path, len(info.Paths)-1)
	default:
		return info.Path
	}
}

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Re-read a binding's control file and print its value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		info, err := client.getBinding(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !info.Supported {
			printWarning("%s has no control file on this device", info.Key)
			return nil
		}
		fmt.Println(displayValue(info))
		return nil
	},
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a new value through a binding",
	Long: `Write a new value through a binding.

Toggles accept true/false, 1/0 or on/off. Lists accept one of the
options declared in the manifest.

Examples:
  sysbind set led_x on
  sysbind set cpu_gov performance`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return setValue(cmd.Context(), client, args[0], args[1])
	},
}

func setValue(ctx context.Context, client *apiClient, key, value string) error {
	result, err := client.setBinding(ctx, key, value)
	if err != nil {
		return err
	}

	for _, t := range result.Targets {
		switch {
		case t.Error != "":
			printError("%s: %s", t.Path, t.Error)
		case t.Recorded:
			printSuccess("%s = %s (restored at boot as %s)", t.Path, result.Encoded, t.BootupKey)
		default:
			printSuccess("%s = %s", t.Path, result.Encoded)
		}
	}

	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d control files could not be written", failed, len(result.Targets))
	}
	return nil
}

// --- bootup ---

var bootupCmd = &cobra.Command{
	Use:   "bootup",
	Short: "Inspect or prune values replayed at boot",
}

var bootupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded bootup entries in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		entries, err := client.listBootup(cmd.Context(), category)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No bootup entries recorded.")
			return nil
		}
		return writeEntries(os.Stdout, entries)
	},
}

func writeEntries(w io.Writer, entries []bootup.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		rows = append(rows, []string{e.Category, e.Key, e.Value, e.Path, state})
	}
	return printTable(w, []string{"CATEGORY", "KEY", "VALUE", "PATH", "STATE"}, rows)
}

var bootupDeleteCmd = &cobra.Command{
	Use:   "delete <category> <key>",
	Short: "Stop replaying one entry at boot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.deleteBootup(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Deleted bootup entry %s/%s", args[0], args[1])
		return nil
	},
}

func init() {
	bootupListCmd.Flags().String("category", "", "only list entries in this category")
	bootupCmd.AddCommand(bootupListCmd)
	bootupCmd.AddCommand(bootupDeleteCmd)
}

// --- restore ---

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replay recorded values into their control files",
	Long: `Replay recorded values into their control files.

Meant to run once at boot, before or without the server. With --via-server
the replay is performed by the running server instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		viaServer, _ := cmd.Flags().GetBool("via-server")

		var (
			report bootup.RestoreReport
			err    error
		)
		if viaServer {
			client, cerr := newAPIClient()
			if cerr != nil {
				return cerr
			}
			report, err = client.restore(cmd.Context(), category)
		} else {
			report, err = restoreLocal(cmd.Context(), category)
		}
		if err != nil {
			return err
		}
		return reportRestore(report)
	},
}

func init() {
	restoreCmd.Flags().String("category", "", "only replay entries in this category")
	restoreCmd.Flags().Bool("via-server", false, "ask the running server to perform the replay")
}

func reportRestore(report bootup.RestoreReport) error {
	for _, f := range report.Failed {
		printError("%s/%s -> %s: %s", f.Category, f.Key, f.Path, f.Error)
	}
	printStatus("Restored", "%d", report.Restored)
	if report.Skipped > 0 {
		printStatus("Skipped", "%d (disabled)", report.Skipped)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d bootup entries could not be restored", len(report.Failed))
	}
	printSuccess("Restore complete")
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
