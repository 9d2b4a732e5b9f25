package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	ssnats "github.com/spendsight/spendsight/internal/adapter/nats"
	"github.com/spendsight/spendsight/internal/adapter/postgres"
	"github.com/spendsight/spendsight/internal/config"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/parallel"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
	"github.com/spendsight/spendsight/internal/resilience"
	"github.com/spendsight/spendsight/internal/secrets"
	"github.com/spendsight/spendsight/internal/service"
)

// runAdmin dispatches admin subcommands (account management and one-shot
// collection, analysis, and recommendation sweeps).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "account":
		return runAdminAccount(args[1:])
	case "collect":
		return runAdminCollect(args[1:])
	case "analyze":
		return runAdminAnalyze(args[1:])
	case "generate":
		return runAdminGenerate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func runAdminAccount(args []string) error {
	if len(args) == 0 {
		printAdminHelp()
		return fmt.Errorf("account subcommand required")
	}
	switch args[0] {
	case "add":
		return runAccountAdd(args[1:])
	case "list":
		return runAccountList(args[1:])
	case "remove":
		return runAccountRemove(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown account command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: spendsight admin <command> [options]

Commands:
  account add      Register a cloud billing account
  account list     List registered accounts
  account remove   Remove an account and its cost history
  collect          Collect costs for one account or all active accounts
  analyze          Run anomaly analysis for one account or all accounts
  generate         Refresh savings recommendations
  help             Show this help message

Examples:
  spendsight admin account add --name "prod aws" --provider aws \
      --cred region=us-east-1 --cred access_key_id=AKIA... --secret secret_access_key
  spendsight admin account list
  spendsight admin account remove --id 6f1e...
  spendsight admin collect --account 6f1e... --from 2026-08-01 --to 2026-08-20
  spendsight admin analyze --date 2026-08-21
  spendsight admin generate

The SPENDSIGHT_MASTER_KEY environment variable must be set.
`)
}

// kvFlags collects repeated key=value flags into a map.
type kvFlags map[string]string

func (f kvFlags) String() string { return "" }

func (f kvFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[k] = val
	return nil
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (f *listFlag) String() string { return strings.Join(*f, ",") }

func (f *listFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

type adminDeps struct {
	accounts   *service.AccountService
	collector  *service.CollectionService
	analyzer   *service.BaselineService
	patterns   *service.PatternService
	reconciler *service.ReconcilerService
	batch      *service.BatchService
	cleanup    func()
}

// loadAdminDeps wires the subset of the service graph the CLI needs. The
// event queue is best-effort: a one-shot sweep still works with NATS down,
// it just emits no events.
func loadAdminDeps() (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	vault, err := secrets.NewVault(secrets.EnvLoader(cfg.Vault.MasterKeyEnv))
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	masterSecret, err := vault.Require(cfg.Vault.MasterKeyEnv)
	if err != nil {
		return nil, err
	}
	key := cloudaccount.DeriveKey(masterSecret)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var queue messagequeue.Queue
	closeQueue := func() {}
	if q, err := ssnats.Connect(ctx, cfg.NATS); err != nil {
		fmt.Fprintf(os.Stderr, "warning: nats unavailable, events disabled: %v\n", err)
	} else {
		queue = q
		closeQueue = func() { _ = q.Close() }
	}

	store := postgres.NewStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	collector := service.NewCollectionService(store, queue, key, breaker, cfg.Collector.RequestTimeout)
	analyzer := service.NewBaselineService(store, queue, cfg.Analyzer.BaselineDays)
	patterns := service.NewPatternService(store, cfg.Detector.WindowDays)
	reconciler := service.NewReconcilerService(store, queue)
	workers := parallel.NewPool(cfg.Collector.MaxConcurrent)

	return &adminDeps{
		accounts:   service.NewAccountService(store, key),
		collector:  collector,
		analyzer:   analyzer,
		patterns:   patterns,
		reconciler: reconciler,
		batch:      service.NewBatchService(store, collector, analyzer, patterns, reconciler, workers),
		cleanup: func() {
			closeQueue()
			pool.Close()
		},
	}, nil
}

func runAccountAdd(args []string) error {
	fs := flag.NewFlagSet("account add", flag.ContinueOnError)
	name := fs.String("name", "", "account display name (required)")
	provider := fs.String("provider", "", "cloud provider: aws, azure, gcp (required)")
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	creds := kvFlags{}
	fs.Var(creds, "cred", "credential field as key=value (repeatable)")
	var secretKeys listFlag
	fs.Var(&secretKeys, "secret", "credential field to prompt for without echo (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *provider == "" {
		return fmt.Errorf("--provider is required")
	}

	for _, k := range secretKeys {
		v, err := promptSecret(k + ": ")
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		creds[k] = v
	}
	if len(creds) == 0 {
		return fmt.Errorf("at least one credential is required (use --cred or --secret)")
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)
	acct, err := deps.accounts.Create(ctx, &cloudaccount.CreateRequest{
		Name:        *name,
		Provider:    *provider,
		Credentials: creds,
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Account created: %s (id=%s, provider=%s)\n", acct.Name, acct.ID, acct.Provider)
	return nil
}

func runAccountList(args []string) error {
	fs := flag.NewFlagSet("account list", flag.ContinueOnError)
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)
	accounts, err := deps.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tSTATUS\tLAST_SYNC")
	for i := range accounts {
		lastSync := "never"
		if accounts[i].LastSyncAt != nil {
			lastSync = accounts[i].LastSyncAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			accounts[i].ID, accounts[i].Name, accounts[i].Provider, accounts[i].Status, lastSync)
	}
	return w.Flush()
}

func runAccountRemove(args []string) error {
	fs := flag.NewFlagSet("account remove", flag.ContinueOnError)
	id := fs.String("id", "", "account ID (required)")
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)
	if err := deps.accounts.Delete(ctx, *id); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Account %s removed.\n", *id)
	return nil
}

func runAdminCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	account := fs.String("account", "", "account ID (default: all active accounts)")
	from := fs.String("from", "", "start date YYYY-MM-DD (default: yesterday)")
	to := fs.String("to", "", "end date YYYY-MM-DD (default: yesterday)")
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rng, err := parseRange(*from, *to)
	if err != nil {
		return err
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)

	if *account != "" {
		result, err := deps.collector.Collect(ctx, *account, rng)
		if err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		printCollectLine(result.AccountID, result.Success, result.RecordsSaved, result.Errors)
		return nil
	}

	results, err := deps.batch.CollectAll(ctx, rng)
	if err != nil {
		return fmt.Errorf("collect all: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No active accounts.")
		return nil
	}
	for i := range results {
		printCollectLine(results[i].AccountID, results[i].Success, results[i].RecordsSaved, results[i].Errors)
	}
	return nil
}

func printCollectLine(accountID string, success bool, saved int, errs []string) {
	status := "ok"
	if !success {
		status = "failed"
	}
	fmt.Printf("%s  %s  saved=%d", accountID, status, saved)
	if len(errs) > 0 {
		fmt.Printf("  errors=%s", strings.Join(errs, "; "))
	}
	fmt.Println()
}

func runAdminAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	account := fs.String("account", "", "account ID (default: all active accounts)")
	date := fs.String("date", "", "usage date YYYY-MM-DD (default: yesterday)")
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day, err := parseDay(*date)
	if err != nil {
		return err
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)

	if *account != "" {
		report, err := deps.analyzer.Analyze(ctx, *account, day)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		fmt.Printf("%s  services=%d  anomalies=%d\n",
			report.AccountID, report.ServicesAnalyzed, report.AnomaliesDetected)
		return nil
	}

	reports, err := deps.batch.AnalyzeAll(ctx, day)
	if err != nil {
		return fmt.Errorf("analyze all: %w", err)
	}
	if len(reports) == 0 {
		fmt.Println("No active accounts.")
		return nil
	}
	for i := range reports {
		fmt.Printf("%s  services=%d  anomalies=%d\n",
			reports[i].AccountID, reports[i].ServicesAnalyzed, reports[i].AnomaliesDetected)
	}
	return nil
}

func runAdminGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	account := fs.String("account", "", "account ID (default: all active accounts)")
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	ctx := middleware.WithTenant(context.Background(), *tenant)

	if *account != "" {
		candidates, err := deps.patterns.Generate(ctx, *account)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		res := deps.reconciler.Reconcile(ctx, candidates)
		printReconcile(res.Created, res.Updated, res.Unchanged, res.Errors)
		return nil
	}

	res, err := deps.batch.GenerateAll(ctx)
	if err != nil {
		return fmt.Errorf("generate all: %w", err)
	}
	printReconcile(res.Created, res.Updated, res.Unchanged, res.Errors)
	return nil
}

func printReconcile(created, updated, unchanged int, errs []string) {
	fmt.Printf("created=%d  updated=%d  unchanged=%d\n", created, updated, unchanged)
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "warning: %s\n", e)
	}
}

// parseRange builds an inclusive day range from the CLI date flags. Both
// default to yesterday, the last complete day.
func parseRange(from, to string) (costitem.DateRange, error) {
	yesterday := costitem.Day(time.Now().UTC()).AddDate(0, 0, -1)

	start := yesterday
	if from != "" {
		d, err := time.Parse("2006-01-02", from)
		if err != nil {
			return costitem.DateRange{}, fmt.Errorf("invalid --from date %q", from)
		}
		start = d
	}
	end := yesterday
	if to != "" {
		d, err := time.Parse("2006-01-02", to)
		if err != nil {
			return costitem.DateRange{}, fmt.Errorf("invalid --to date %q", to)
		}
		end = d
	}
	if end.Before(start) {
		return costitem.DateRange{}, fmt.Errorf("--to is before --from")
	}
	return costitem.NewDateRange(start, end), nil
}

func parseDay(date string) (time.Time, error) {
	if date == "" {
		return costitem.Day(time.Now().UTC()).AddDate(0, 0, -1), nil
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q", date)
	}
	return d, nil
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
