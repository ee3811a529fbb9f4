package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/services/policy"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log.Info(map[string]any{
				"version":   version,
				"env":       cfg.Env,
				"log_level": cfg.Log.Level,
				"listen":    cfg.Server.Listen,
			}, "Starting rr-matrix")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApplication(ctx, cfg)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newEvalCmd(configPath *string) *cobra.Command {
	var scope, typ string

	cmd := &cobra.Command{
		Use:   "eval HOSTNAME",
		Short: "Resolve one cell in both layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseRequestType(typ)
			if err != nil {
				return err
			}
			host := hostname.Canonical(args[0])
			if !domain.ValidHostname(host) {
				return fmt.Errorf("%w: %q", domain.ErrInvalidHostname, args[0])
			}
			svc, err := openService(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			tc, pc := svc.Evaluate(scope, host, t)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s temporary=%s permanent=%s\n", scope, host, t, tc, pc)
			return err
		},
	}
	cmd.Flags().StringVarP(&scope, "scope", "s", hostname.Any, "Scope to evaluate from")
	cmd.Flags().StringVarP(&typ, "type", "t", hostname.Any, "Request type column")
	return cmd
}

func newRulesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Export or import the permanent rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the permanent rules as rule text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			_, err = io.WriteString(cmd.OutOrStdout(), svc.UserRules().Permanent)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Replace the permanent rules with a rule text file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := openService(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			s := string(text)
			if _, err := svc.SetUserRules(cmd.Context(), policy.RuleTextsUpdate{Permanent: &s}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", svc.Stats().PermanentRules)
			return err
		},
	})
	return cmd
}

func newBackupCmd(configPath *string) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the settings and permanent rules as a backup document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			b, err := encodeUserData(svc.Backup(), format)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(out, b, 0o600)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newRestoreCmd(configPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace the settings and rules from a backup document (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(args[0])
			}
			ud, err := decodeUserData(b, format)
			if err != nil {
				return err
			}
			svc, err := openService(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := svc.Restore(cmd.Context(), ud); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %d rules\n", svc.Stats().PermanentRules)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Input format: json or yaml (default from extension)")
	return cmd
}

var errUnknownFormat = errors.New("unknown format")

func encodeUserData(ud policy.UserData, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		b, err := json.MarshalIndent(ud, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(ud)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func decodeUserData(b []byte, format string) (policy.UserData, error) {
	var ud policy.UserData
	switch strings.ToLower(format) {
	case "json":
		err := json.Unmarshal(b, &ud)
		return ud, err
	case "yaml", "yml":
		err := yaml.Unmarshal(b, &ud)
		return ud, err
	default:
		return ud, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
