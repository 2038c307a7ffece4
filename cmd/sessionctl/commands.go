package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Drive a goSession engine from the command line",
		Long: `sessionctl hosts a goSession engine for the duration of one command.

Configuration is read from --config (YAML, JSON or TOML), GOSESSION_*
environment variables and an optional .env file. The credential store
persists between invocations, so the return policy applies to the time
between two commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./gosession.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newWhoamiCmd(a),
		newUnlockCmd(a),
		newResumeCmd(a),
		newCanCmd(a),
		newRefreshCmd(a),
		newPasswdCmd(a),
		newForgotPasswordCmd(a),
		newResetPasswordCmd(a),
		newMetricsCmd(a),
		newServeCmd(a),
	)
	return root
}

// readSecret returns the flag value or the first line of stdin.
func (a *app) readSecret(flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(a.stderr, prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Authenticate against the identity server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readSecret(password, "Password: ")
			if err != nil {
				return err
			}
			if err := a.engine.Login(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			return a.printStatus()
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	var expired bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Long: `Without flags the credential is wiped and a full login is required
afterwards. With --expired the session is only locked and the cached
credential kept for a lock-screen unlock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.engine.Logout(cmd.Context(), !expired); err != nil {
				return err
			}
			return a.printStatus()
		},
	}
	cmd.Flags().BoolVar(&expired, "expired", false, "automatic logout: lock instead of wiping")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.printStatus()
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the cached principal",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			user := a.engine.CurrentUser()
			if user == nil {
				return fmt.Errorf("%w: no principal", errDenied)
			}
			return a.printProfile(*user)
		},
	}
}

func newUnlockCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Leave the lock-screen with the local password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.readSecret(password, "Password: ")
			if err != nil {
				return err
			}
			if !a.engine.UnlockLocal(cmd.Context(), pw) {
				err := a.engine.Snapshot().Err
				if err == nil {
					err = goSession.ErrUnlockFailed
				}
				return fmt.Errorf("%w: %w", errDenied, err)
			}
			return a.printStatus()
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Apply the return policy, or restore the cached session with --force",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if force {
				if !a.engine.ForceRestore(cmd.Context()) {
					return fmt.Errorf("%w: %w", errDenied, goSession.ErrNoCachedSession)
				}
			} else {
				a.engine.Resume(cmd.Context())
			}
			return a.printStatus()
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "restore from cache without consulting exit markers")
	return cmd
}

func newCanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "can <permission>",
		Short: "Check a CRUD permission such as R, CU or ALL",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ok := a.engine.HasPermission(args[0])
			if a.output == "json" {
				if err := a.printJSON(map[string]any{"permission": args[0], "granted": ok}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(a.stdout, "%s: %t\n", args[0], ok)
			}
			if !ok {
				return fmt.Errorf("%w: permission %s", errDenied, args[0])
			}
			return nil
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the profile from the identity server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.engine.FetchProfile(cmd.Context())
			if err != nil {
				return err
			}
			return a.printProfile(p)
		},
	}
}

func newPasswdCmd(a *app) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the authenticated principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if oldPassword == "" || newPassword == "" {
				return errors.New("--old and --new are required")
			}
			return a.engine.ChangePassword(cmd.Context(), goSession.PasswordChange{
				OldPassword: oldPassword,
				Password:    newPassword,
				Confirm:     newPassword,
			})
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	return cmd
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.ForgotPassword(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "reset requested")
			return nil
		},
	}
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var password string
	var verifyOnly bool
	cmd := &cobra.Command{
		Use:   "reset-password <reset-token>",
		Short: "Complete a password reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifyOnly {
				if err := a.engine.VerifyResetToken(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "reset token valid")
				return nil
			}
			pw, err := a.readSecret(password, "New password: ")
			if err != nil {
				return err
			}
			err = a.engine.ResetPassword(cmd.Context(), goSession.PasswordReset{Token: args[0], Password: pw, Confirm: pw})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "password reset")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (read from stdin when empty)")
	cmd.Flags().BoolVar(&verifyOnly, "verify", false, "only check the reset token")
	return cmd
}

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print this invocation's engine metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(promexport.NewExporter(a.engine))
			families, err := reg.Gather()
			if err != nil {
				return err
			}
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(a.stdout, mf); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
