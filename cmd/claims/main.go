package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"claims-go/internal/app"
	"claims-go/internal/claims"
	"claims-go/internal/config"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config from the default location.
func loadConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a ClaimsApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateClaim").
func newApp(ctx context.Context, operation string) (*app.ClaimsApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewClaimsApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase takes the passphrase from CLAIMS_PASSPHRASE or prompts on
// the terminal without echo.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if p := os.Getenv("CLAIMS_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal for passphrase prompt; set CLAIMS_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(again) != string(p) {
			return "", errors.New("passphrases do not match")
		}
	}
	return string(p), nil
}

// parseOwner accepts a player UUID or "admin".
func parseOwner(s string) (uuid.UUID, error) {
	if strings.EqualFold(s, "admin") {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid owner %q: %w", s, err)
	}
	return id, nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", a)
		}
		out[i] = n
	}
	return out, nil
}

func printClaim(a *app.ClaimsApp, c *claims.Claim) {
	owner := c.OwnerID().String()
	if c.IsAdmin() {
		owner = "admin"
	}
	parent := "-"
	if c.IsSubdivision() {
		parent = strconv.FormatInt(c.ParentID(), 10)
	}
	fmt.Printf("#%d  %-14s  %-22s  %s  parent:%s  subdivisions:%d  created:%s\n",
		c.ID(),
		a.Worlds().Name(c.World()),
		c.Bounds(),
		owner,
		parent,
		len(c.ChildIDs()),
		c.CreatedAt().Format("2006-01-02 15:04:05"),
	)
}

var rootCmd = &cobra.Command{
	Use:          "claims",
	Short:        "Land claim administration",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := paths.InitialConfig()
		if err != nil {
			return err
		}
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Storage: %s\n", cfg.Storage.Type)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Println("Add [[worlds]] entries before running maintenance commands.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage claim storage",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the storage schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateStorage(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Printf("Storage (%s) is up to date\n", cfg.Storage.Type)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the storage schema without changing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.StorageStatus(cfg); err != nil {
			return err
		}
		fmt.Printf("Storage (%s) is ready\n", cfg.Storage.Type)
		return nil
	},
}

var dbImportLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Copy claims from the legacy tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stats, err := app.ImportLegacy(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d claim(s), %d subdivision(s), %d player(s); skipped %d\n",
			stats.Claims, stats.Subdivisions, stats.Players, stats.Skipped)
		return nil
	},
}

// orphans command
var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Manage orphaned claims",
}

var orphansClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete claims in unconfigured worlds and subdivisions without a parent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ClearOrphans")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ClearOrphans(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d orphaned record(s)\n", n)
		return nil
	},
}

// claim command
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Inspect and edit claims",
}

var claimAtCmd = &cobra.Command{
	Use:   "at WORLD X Z",
	Short: "Show the claim at a block",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		xz, err := parseInts(args[1:])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ClaimAt")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.ClaimAt(args[0], xz[0], xz[1])
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Println("Unclaimed.")
			return nil
		}
		printClaim(a, c)
		return nil
	},
}

var claimListCmd = &cobra.Command{
	Use:   "list OWNER",
	Short: "List the top-level claims of a player, or \"admin\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ListClaims")
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.ListClaims(owner)
		if len(list) == 0 {
			fmt.Println("No claims.")
			return nil
		}
		for _, c := range list {
			printClaim(a, c)
		}
		return nil
	},
}

var claimCreateCmd = &cobra.Command{
	Use:   "create WORLD X1 Z1 X2 Z2",
	Short: "Create a claim",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		corners, err := parseInts(args[1:])
		if err != nil {
			return err
		}
		ownerFlag, _ := cmd.Flags().GetString("owner")
		owner, err := parseOwner(ownerFlag)
		if err != nil {
			return err
		}
		parent, _ := cmd.Flags().GetInt64("parent")

		a, err := newApp(cmd.Context(), "CreateClaim")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.CreateClaim(args[0], claims.NewRect(corners[0], corners[1], corners[2], corners[3]), owner, parent)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case claims.Success:
			fmt.Printf("Created claim #%d\n", res.Claim.ID())
			return nil
		case claims.Overlap, claims.OutsideParent:
			return fmt.Errorf("%s: conflicts with claim #%d %s", res.Outcome, res.Conflict.ID(), res.Conflict.Bounds())
		default:
			return fmt.Errorf("%s: %s", res.Outcome, res.Reason)
		}
	},
}

var claimDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a claim and its subdivisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid claim id %q", args[0])
		}

		a, err := newApp(cmd.Context(), "DeleteClaim")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteClaim(id); err != nil {
			return err
		}
		fmt.Printf("Deleted claim #%d\n", id)
		return nil
	},
}

// group command
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage permission group quota",
}

var groupBonusCmd = &cobra.Command{
	Use:   "bonus GROUP DELTA",
	Short: "Adjust a group's bonus claim blocks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid delta %q", args[1])
		}

		a, err := newApp(cmd.Context(), "AdjustGroupBonus")
		if err != nil {
			return err
		}
		defer a.Close()

		total, err := a.AdjustGroupBonus(cmd.Context(), args[0], delta)
		if err != nil {
			return err
		}
		fmt.Printf("Group %s now has %d bonus block(s)\n", args[0], total)
		return nil
	},
}

// player command
var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Inspect players",
}

var playerShowCmd = &cobra.Command{
	Use:   "show PLAYER",
	Short: "Show a player's claim blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid player id %q", args[0])
		}
		groups, _ := cmd.Flags().GetStringSlice("group")

		a, err := newApp(cmd.Context(), "ShowPlayer")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Player(cmd.Context(), id, groups...)
		if err != nil {
			return err
		}
		lastSeen := "never"
		if !r.Player.LastSeen.IsZero() {
			lastSeen = r.Player.LastSeen.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Player:    %s\n", id)
		fmt.Printf("Last seen: %s\n", lastSeen)
		fmt.Printf("Accrued:   %d\n", r.Player.AccruedBlocks)
		fmt.Printf("Bonus:     %d\n", r.Player.BonusBlocks)
		fmt.Printf("Remaining: %d\n", r.Remaining)
		for _, c := range r.Claims {
			printClaim(a, c)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase, err := readPassphrase("Passphrase for the private key: ", true)
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Archive.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Archive.Encryption.PrivateKeyPath)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export and restore encrypted snapshots",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a snapshot of all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ExportSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ExportSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Exported %s: %d claim(s), %d player(s), %d group(s)\n", res.Name, res.Claims, res.Players, res.Groups)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [NAME]",
	Short: "Restore a snapshot into empty storage (newest when NAME is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		passphrase, err := readPassphrase("Passphrase: ", false)
		if err != nil {
			return err
		}
		stats, err := app.RestoreSnapshot(cmd.Context(), cfg, name, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d claim(s), %d player(s), %d group(s)\n", stats.Claims, stats.Players, stats.Groups)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored claims",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Stats()
		fmt.Printf("Claims:        %d\n", s.Claims)
		fmt.Printf("  top-level:   %d\n", s.TopLevel)
		fmt.Printf("  subdivisions: %d\n", s.Subdivisions)
		fmt.Printf("Cached players: %d\n", s.Players)
		fmt.Printf("Groups:        %d\n", s.Groups)
		fmt.Printf("Index buckets: %d\n", s.Buckets)
		fmt.Printf("Snapshot keys: %v\n", a.KeysConfigured())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbImportLegacyCmd)

	orphansCmd.AddCommand(orphansClearCmd)

	claimCmd.AddCommand(claimAtCmd)
	claimCmd.AddCommand(claimListCmd)
	claimCmd.AddCommand(claimCreateCmd)
	claimCreateCmd.Flags().String("owner", "admin", "Owner UUID, or \"admin\"")
	claimCreateCmd.Flags().Int64("parent", 0, "Parent claim id for a subdivision")
	claimCmd.AddCommand(claimDeleteCmd)

	groupCmd.AddCommand(groupBonusCmd)

	playerCmd.AddCommand(playerShowCmd)
	playerShowCmd.Flags().StringSliceP("group", "g", nil, "Permission groups counted for bonus blocks")

	keysCmd.AddCommand(keysSetupCmd)

	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(playerCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(statsCmd)
}
