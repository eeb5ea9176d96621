// Package casecmd carries the case database maintenance commands: connection
// tests, database refresh, sync validation and scripted case creation.
package casecmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/provisioning"
	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/repo"
	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	"github.com/mediamatex/lexarbitra-vue/platform/go/kas"
	platformlogging "github.com/mediamatex/lexarbitra-vue/platform/go/logging"
	"github.com/mediamatex/lexarbitra-vue/platform/go/persistence"
	"github.com/mediamatex/lexarbitra-vue/platform/go/secrets"
)

// Command groups the case database helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Case database utilities (test-db, refresh, validate-sync, create, delete)",
	}

	cmd.AddCommand(testDBCommand())
	cmd.AddCommand(refreshCommand())
	cmd.AddCommand(validateSyncCommand())
	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	return cmd
}

type wiring struct {
	svc         *service.Service
	switchboard *casedb.Switchboard
	pool        func()
}

func (w *wiring) close() {
	w.switchboard.CloseAll()
	w.pool()
}

type wiringFlags struct {
	databaseURL string
	backend     string
	caseDBDir   string
	caseDBHost  string
	kasLogin    string
	kasPassword string
	kasEndpoint string
	appKey      string
}

func registerWiringFlags(c *cobra.Command, f *wiringFlags) {
	c.Flags().StringVar(&f.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "landlord Postgres connection string")
	c.Flags().StringVar(&f.backend, "backend", envOr("CASE_DB_BACKEND", "local"), "provisioning backend: local or kas")
	c.Flags().StringVar(&f.caseDBDir, "case-db-dir", envOr("CASE_DB_DIR", "./.data/cases"), "directory for local case database files")
	c.Flags().StringVar(&f.caseDBHost, "case-db-host", os.Getenv("CASE_DB_HOST"), "MySQL host for kas-provisioned databases")
	c.Flags().StringVar(&f.kasLogin, "kas-login", os.Getenv("KAS_LOGIN"), "KAS account login")
	c.Flags().StringVar(&f.kasPassword, "kas-password", os.Getenv("KAS_PASSWORD"), "KAS account password")
	c.Flags().StringVar(&f.kasEndpoint, "kas-endpoint", os.Getenv("KAS_ENDPOINT"), "KAS SOAP endpoint override")
	c.Flags().StringVar(&f.appKey, "app-key", os.Getenv("APP_KEY"), "credential encryption key")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildWiring(ctx context.Context, f wiringFlags) (*wiring, error) {
	if f.databaseURL == "" {
		return nil, fmt.Errorf("--database-url (or DATABASE_URL) is required")
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: "warn"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var cipher *secrets.Cipher
	if f.appKey != "" {
		cipher, err = secrets.DeriveCipher(f.appKey, []byte(envOr("APP_KEY_SALT", "lexarbitra-credentials-v1")))
		if err != nil {
			return nil, fmt.Errorf("derive credential cipher: %w", err)
		}
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewCaseReferenceStore(ctx, pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init case reference store: %w", err)
	}

	var provisioner service.DatabaseProvisioner
	switch f.backend {
	case "local":
		provisioner = provisioning.NewLocal(f.caseDBDir, logger)
	case "kas":
		if f.kasLogin == "" || f.kasPassword == "" || f.caseDBHost == "" {
			persistence.ClosePool(pool)
			return nil, fmt.Errorf("--kas-login, --kas-password and --case-db-host required for backend kas")
		}
		provisioner = provisioning.NewKAS(kas.NewClient(kas.Config{
			Login:        f.kasLogin,
			Password:     f.kasPassword,
			Endpoint:     f.kasEndpoint,
			DatabaseHost: f.caseDBHost,
			Logger:       logger,
		}))
	default:
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("invalid backend %q (use local or kas)", f.backend)
	}

	switchboard := casedb.NewSwitchboard(casedb.SwitchboardConfig{
		LocalMode: f.backend == "local",
		Cipher:    cipher,
		Logger:    logger,
	})

	svc, err := service.New(service.Deps{
		Repo:        repo.NewPostgres(store),
		Provisioner: provisioner,
		Switchboard: switchboard,
		Migrator:    casedb.NewMigrator(logger),
		TenantCases: casedb.NewTenantCaseRepository(),
		Cipher:      cipher,
		Logger:      logger,
	})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}

	return &wiring{
		svc:         svc,
		switchboard: switchboard,
		pool:        func() { persistence.ClosePool(pool) },
	}, nil
}

func testDBCommand() *cobra.Command {
	var flags wiringFlags

	c := &cobra.Command{
		Use:   "test-db <case-id>",
		Short: "Test connectivity and schema of a case database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid case id: %w", err)
			}

			ctx := context.Background()
			w, err := buildWiring(ctx, flags)
			if err != nil {
				return err
			}
			defer w.close()

			report, err := w.svc.TestCaseDatabase(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("case:        %s\n", report.CaseID)
			fmt.Printf("connection:  %s\n", report.ConnectionName)
			fmt.Printf("database:    %s (%s)\n", report.DatabaseName, report.BackendKind)
			fmt.Printf("reachable:   %t\n", report.Reachable)
			if report.Reachable {
				fmt.Printf("tables:      %s\n", strings.Join(report.Tables, ", "))
				fmt.Printf("case rows:   %d\n", report.TenantCases)
			} else {
				fmt.Printf("error:       %s\n", report.Error)
			}
			return nil
		},
	}

	registerWiringFlags(c, &flags)
	return c
}

func refreshCommand() *cobra.Command {
	var flags wiringFlags

	c := &cobra.Command{
		Use:   "refresh <case-id>",
		Short: "Recreate the physical database for a case whose credentials were lost",
		Long:  "Drops and reprovisions the case database, reruns migrations and rebuilds the tenant case row from the registry. Tenant data beyond the mirrored case row is not preserved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid case id: %w", err)
			}

			ctx := context.Background()
			w, err := buildWiring(ctx, flags)
			if err != nil {
				return err
			}
			defer w.close()

			result, err := w.svc.RefreshCredentials(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("database refreshed: %s on %s\n", result.Reference.DatabaseName, result.Reference.DatabaseHost)
			if result.DatabasePending {
				fmt.Println("warning: setup incomplete, run again or inspect with test-db")
			}
			return nil
		},
	}

	registerWiringFlags(c, &flags)
	return c
}

func validateSyncCommand() *cobra.Command {
	var (
		flags wiringFlags
		fix   bool
	)

	c := &cobra.Command{
		Use:   "validate-sync",
		Short: "Check every linked case for landlord/tenant drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w, err := buildWiring(ctx, flags)
			if err != nil {
				return err
			}
			defer w.close()

			issues, err := w.svc.ValidateSync(ctx, fix)
			if err != nil {
				return err
			}

			if len(issues) == 0 {
				fmt.Println("all linked cases are in sync")
				return nil
			}
			for _, issue := range issues {
				fixed := ""
				if issue.Fixed {
					fixed = " (fixed)"
				}
				fmt.Printf("%s  %-20s %s%s\n", issue.CaseID, issue.Problem, issue.Detail, fixed)
			}
			if !fix {
				fmt.Println("\nrerun with --fix to repair missing rows and mismatched fields")
			}
			return nil
		},
	}

	registerWiringFlags(c, &flags)
	c.Flags().BoolVar(&fix, "fix", false, "repair missing tenant rows and mismatched fields")
	return c
}

func createCommand() *cobra.Command {
	var (
		flags       wiringFlags
		caseNumber  string
		title       string
		initiatedAt string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a case end to end (registry row, database, schema, tenant row)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w, err := buildWiring(ctx, flags)
			if err != nil {
				return err
			}
			defer w.close()

			result, err := w.svc.CreateCase(ctx, service.CreateInput{
				CaseNumber:  caseNumber,
				Title:       title,
				InitiatedAt: initiatedAt,
			})
			if err != nil {
				return err
			}

			fmt.Printf("case created: %s\n", result.Reference.ID)
			fmt.Printf("database:     %s (%s)\n", result.Reference.DatabaseName, result.Reference.BackendKind)
			if result.DatabasePending {
				fmt.Println("warning: database setup incomplete, inspect with test-db")
			}
			return nil
		},
	}

	registerWiringFlags(c, &flags)
	c.Flags().StringVar(&caseNumber, "number", "", "case number (required)")
	c.Flags().StringVar(&title, "title", "", "case title (required)")
	c.Flags().StringVar(&initiatedAt, "initiated", "", "initiation date, YYYY-MM-DD (required)")
	_ = c.MarkFlagRequired("number")
	_ = c.MarkFlagRequired("title")
	_ = c.MarkFlagRequired("initiated")
	return c
}

func deleteCommand() *cobra.Command {
	var flags wiringFlags

	c := &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case: connection, physical database and registry row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid case id: %w", err)
			}

			ctx := context.Background()
			w, err := buildWiring(ctx, flags)
			if err != nil {
				return err
			}
			defer w.close()

			report, err := w.svc.DeleteCase(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("case deleted: %s\n", report.CaseID)
			if !report.DatabaseDeleted {
				fmt.Printf("warning: physical database %s could not be deleted\n", report.DatabaseName)
			}
			return nil
		},
	}

	registerWiringFlags(c, &flags)
	return c
}
