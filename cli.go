package caerbannog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"caerbannog/internal/engine"
	"caerbannog/internal/host"
	"caerbannog/internal/journal"
	"caerbannog/internal/logging"
	"caerbannog/internal/op"
	"caerbannog/internal/report"
	"caerbannog/internal/secrets"
	"caerbannog/internal/target"
	"caerbannog/internal/vars"
)

// Command builds the root command with every subcommand attached.
func (a *App) Command() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "caerbannog",
		Short:         "Declarative configuration for this machine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			report.DetectColors()
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(a.applyCmd())
	root.AddCommand(a.targetCmd())
	root.AddCommand(a.encryptCmd())
	root.AddCommand(a.decryptCmd())
	root.AddCommand(a.viewCmd())
	return root
}

func (a *App) applyCmd() *cobra.Command {
	var (
		dryRun      bool
		confirm     bool
		elevate     bool
		showContext bool
		roleList    string
		skipList    string
		contextJSON string
	)

	cmd := &cobra.Command{
		Use:   "apply <target>",
		Short: "Converge the machine towards a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm && dryRun {
				return fmt.Errorf("cannot use --confirm and --dry-run at the same time")
			}

			ctx, err := a.buildContext(args[0], dryRun, confirm, contextJSON)
			if err != nil {
				return err
			}

			if elevate {
				return reexecElevated(ctx)
			}

			if showContext {
				serialized, err := ctx.Serialize()
				if err != nil {
					return err
				}
				fmt.Println(serialized)
				return nil
			}

			return a.run(ctx, splitList(roleList), splitList(skipList))
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without making them")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Mark the run as interactively confirmed")
	cmd.Flags().BoolVar(&elevate, "elevate", false, "Re-execute the whole run under sudo")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the run context and exit")
	cmd.Flags().StringVar(&roleList, "role", "", "Only apply the given roles (comma-separated)")
	cmd.Flags().StringVar(&skipList, "skip-role", "", "Skip the given roles (comma-separated)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Serialized run context (internal, set by --elevate)")
	_ = cmd.Flags().MarkHidden("context")
	return cmd
}

// buildContext assembles the run context: from the serialized handshake when
// present, from scratch otherwise. Modify and confirm always come from the
// current invocation's flags.
func (a *App) buildContext(targetName string, dryRun, confirm bool, contextJSON string) (*op.Context, error) {
	if contextJSON != "" {
		ctx, err := op.Deserialize(contextJSON)
		if err != nil {
			return nil, err
		}
		ctx.Target = targetName
		ctx.Modify = !dryRun
		ctx.Confirm = confirm
		return ctx, nil
	}

	t, ok := a.targets.Lookup(targetName)
	if !ok {
		return nil, fmt.Errorf("unknown target %q", targetName)
	}

	facts, err := host.Detect()
	if err != nil {
		return nil, err
	}
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}

	loader := &vars.Loader{Root: root, Password: a.password}
	tree, err := loader.LoadAll(t)
	if err != nil {
		return nil, err
	}
	tree, err = vars.Unify(tree, vars.Tree{"host": facts.Tree()}, vars.StrategyMerge)
	if err != nil {
		return nil, err
	}

	elevation := op.ElevationNone
	if facts.IsLinux() {
		elevation = op.ElevationJustInTime
	}

	return &op.Context{
		Root:      root,
		Target:    targetName,
		Modify:    !dryRun,
		Confirm:   confirm,
		Elevation: elevation,
		Vars:      tree,
		Host:      facts,
	}, nil
}

// reexecElevated restarts the invocation under sudo, passing the already
// assembled context so variables are loaded (and the secrets password
// prompted) exactly once, as the invoking user.
func reexecElevated(ctx *op.Context) error {
	ctx.Elevation = op.ElevationElevated
	serialized, err := ctx.Serialize()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{"--preserve-env", exe}
	for _, arg := range os.Args[1:] {
		if arg == "--elevate" {
			continue
		}
		args = append(args, arg)
	}
	args = append(args, "--context", serialized)

	cmd := exec.Command("sudo", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		return fmt.Errorf("elevate: %w", err)
	}
	return nil
}

// run executes the engine with the journal attached when it can be opened.
func (a *App) run(ctx *op.Context, roleLimit, skipRoles []string) error {
	log := report.New()
	eng := &engine.Engine{
		Targets: a.targets,
		Roles:   a.roles,
		Ctx:     ctx,
		Log:     log,
	}

	store, err := journal.Open(ctx.Host.XDGDataHome("caerbannog", "journal.db"))
	if err != nil {
		slog.Warn("journal unavailable", "error", err)
	} else {
		defer store.Close()
		if err := store.Begin(ctx.Target, !ctx.Modify); err != nil {
			slog.Warn("journal unavailable", "error", err)
		} else {
			eng.Recorder = store
		}
	}

	execErr := eng.Execute(ctx.Target, roleLimit, skipRoles)
	if eng.Recorder != nil {
		outcome := "converged"
		if execErr != nil {
			outcome = "failed"
		}
		store.Finish(outcome)
	}
	return execErr
}

func (a *App) targetCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "target [name]",
		Short: "Show targets and their dependency trees",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				t, ok := a.targets.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown target %q", args[0])
				}
				fmt.Printf("Dependencies of %s:\n\n", t.Name())
				showTargetTree(t, nil, true, full)
				return nil
			}

			for _, t := range a.targets.All() {
				fmt.Println(t.Name())
				if full {
					roles := t.Roles()
					for i, role := range roles {
						if i == len(roles)-1 {
							fmt.Printf("└╌╌╌%s\n", report.Muted(role))
						} else {
							fmt.Printf("├╌╌╌%s\n", report.Muted(role))
						}
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Include roles in the tree")
	return cmd
}

// showTargetTree renders a target's requires graph with box-drawing
// connectors; roles are attached with dashed connectors when full is set.
func showTargetTree(t *target.Target, padding []string, last, full bool) {
	showTreeNode(t.Name(), padding, last, "─")

	deps := t.Dependencies()
	var roles []string
	if full {
		roles = t.Roles()
	}

	for i, dep := range deps {
		willBeLast := i+1 == len(deps)+len(roles)
		showTargetTree(dep, append(padding, branchPadding(willBeLast)), willBeLast, full)
	}
	for i, role := range roles {
		isLast := i+1 == len(roles)
		showTreeNode(report.Muted(role), append(padding, branchPadding(isLast)), isLast, "╌")
	}
}

func showTreeNode(label string, padding []string, last bool, connector string) {
	if len(padding) > 0 {
		fmt.Print(strings.Join(padding[:len(padding)-1], ""))
		if last {
			fmt.Print("└" + strings.Repeat(connector, 3))
		} else {
			fmt.Print("├" + strings.Repeat(connector, 3))
		}
	}
	fmt.Println(label)
}

func branchPadding(last bool) string {
	if last {
		return "    "
	}
	return "│   "
}

func (a *App) encryptCmd() *cobra.Command {
	var (
		file  string
		text  string
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a file in place or a literal text",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptNewPassword()
			if err != nil {
				return err
			}

			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				secret, err := secrets.Encrypt(data, password, true)
				if err != nil {
					return err
				}
				return os.WriteFile(file, []byte(secret), 0o644)
			case text != "":
				secret, err := secrets.Encrypt([]byte(text), password, !plain)
				if err != nil {
					return err
				}
				fmt.Println(secret)
				return nil
			default:
				return fmt.Errorf("either --file or --text is required")
			}
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "File to encrypt in place")
	cmd.Flags().StringVar(&text, "text", "", "Text to encrypt to standard output")
	cmd.Flags().BoolVar(&plain, "plain", false, "Emit a single line instead of the wrapped form")
	return cmd
}

func (a *App) decryptCmd() *cobra.Command {
	var (
		file string
		text string
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a file in place or a literal secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.password()
			if err != nil {
				return err
			}

			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				plaintext, err := secrets.Decrypt(string(data), password)
				if err != nil {
					return err
				}
				return os.WriteFile(file, plaintext, 0o644)
			case text != "":
				plaintext, err := secrets.Decrypt(text, password)
				if err != nil {
					return err
				}
				fmt.Println(string(plaintext))
				return nil
			default:
				return fmt.Errorf("either --file or --text is required")
			}
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "File to decrypt in place")
	cmd.Flags().StringVar(&text, "text", "", "Secret to decrypt to standard output")
	return cmd
}

func (a *App) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "Print a decrypted file without modifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.password()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			plaintext, err := secrets.Decrypt(string(data), password)
			if err != nil {
				return err
			}
			fmt.Print(string(plaintext))
			return nil
		},
	}
}

// promptPassword reads the secrets password from the terminal, echoing
// nothing. The prompt goes to stderr so piped output stays clean.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Secrets password: ")
	pw, err := term.ReadPassword(os.Stdin.Fd())
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// promptNewPassword prompts twice and requires both entries to match.
func promptNewPassword() (string, error) {
	first, err := promptPassword()
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(os.Stdin.Fd())
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if first != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
