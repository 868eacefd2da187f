// Command permitctl imports a permit spreadsheet from the command line.
//
// It runs the same reconciliation engine as the HTTP service, synchronously,
// against either a PostgreSQL database or an in-memory store (dry run).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/logging"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/store/memory"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/store/postgres"
)

func main() {
	var (
		file       = flag.String("file", "", "path to the spreadsheet to import (required)")
		uploadedBy = flag.String("uploaded-by", "permitctl", "name recorded in the upload ledger")
		dsn        = flag.String("dsn", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
		dryRun     = flag.Bool("dry-run", false, "import into an in-memory store, write nothing")
		preview    = flag.Bool("preview", false, "analyze the file without importing")
		logLevel   = flag.String("log-level", "warn", "log level: debug, info, warn, error")
	)
	flag.Parse()

	godotenv.Load()
	logging.Setup(*logLevel, "text")

	if *file == "" {
		color.Red("missing -file")
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		color.Red("read %s: %v", *file, err)
		os.Exit(1)
	}

	if *preview {
		if err := runPreview(*file, data); err != nil {
			color.Red("%v", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, *dsn, *dryRun)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	defer cleanup()

	summary, runErr := importFile(ctx, store, *file, *uploadedBy, data)
	if summary != nil {
		printSummary(summary)
	}
	if ms, ok := store.(*memory.Store); ok {
		color.Yellow("dry run store now holds %d permits for %d employees",
			ms.PermitCount(), ms.EmployeeCount())
	}
	if runErr != nil {
		color.Red("import failed: %v", runErr)
		os.Exit(1)
	}
}

// openStore picks the backing store: in-memory for dry runs, PostgreSQL
// otherwise. The returned cleanup closes the pool when there is one.
func openStore(ctx context.Context, dsn string, dryRun bool) (permit.Store, func(), error) {
	if dryRun {
		color.Yellow("dry run: using in-memory store, nothing will be written")
		return memory.New(), func() {}, nil
	}

	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("no database: set -dsn or DATABASE_URL, or pass -dry-run")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return postgres.New(pool), pool.Close, nil
}

// importFile runs the reconciliation engine synchronously, echoing progress
// to the terminal.
func importFile(ctx context.Context, store permit.Store, fileName, uploadedBy string, data []byte) (*permit.RunSummary, error) {
	parsed, err := permit.ParseUpload(data)
	if err != nil {
		return nil, err
	}

	color.Cyan("importing %s: %d rows", fileName, len(parsed.Candidates))

	ledger, _ := store.(permit.LedgerStore)
	engine := permit.NewEngine(store, ledger)

	meta := permit.RunMeta{UploadedBy: uploadedBy, FileName: fileName}

	lastPercent := -1
	return engine.Run(ctx, parsed.Candidates, meta, func(p permit.Progress) {
		if p.Percentage == lastPercent {
			return
		}
		lastPercent = p.Percentage
		fmt.Printf("\r%3d%% (%d/%d)", p.Percentage, p.CurrentRow, p.TotalRows)
		if p.CurrentRow == p.TotalRows {
			fmt.Println()
		}
	})
}

func runPreview(fileName string, data []byte) error {
	svc := permit.NewService(memory.New(), nil)
	result, err := svc.Preview(fileName, data)
	if err != nil {
		return err
	}

	color.Cyan("\nDetected Columns")
	mapping := tablewriter.NewWriter(os.Stdout)
	mapping.SetHeader([]string{"Field", "Column"})
	for field, col := range result.Mapping {
		mapping.Append([]string{field, col})
	}
	mapping.Render()

	if !result.MappingComplete {
		color.Red("header is missing mandatory columns")
	}

	color.Cyan("\nRows")
	rows := tablewriter.NewWriter(os.Stdout)
	rows.SetHeader([]string{"Total", "Valid", "Invalid"})
	rows.Append([]string{
		fmt.Sprintf("%d", result.TotalRows),
		fmt.Sprintf("%d", result.ValidRows),
		fmt.Sprintf("%d", result.InvalidRows),
	})
	rows.Render()

	for _, e := range result.Errors {
		color.Red("  %s", e)
	}
	return nil
}

func printSummary(summary *permit.RunSummary) {
	color.Cyan("\nImport Summary")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Status", "Total", "Inserted", "Updated", "Skipped"})
	table.Append([]string{
		string(summary.Status),
		fmt.Sprintf("%d", summary.Total),
		fmt.Sprintf("%d", summary.Inserted),
		fmt.Sprintf("%d", summary.Updated),
		fmt.Sprintf("%d", summary.Skipped),
	})
	table.Render()

	if len(summary.Errors) > 0 {
		color.Yellow("\n%d rows reported errors:", len(summary.Errors))
		for _, e := range summary.Errors {
			color.Red("  %s", e)
		}
	}

	if summary.Status == permit.RunCompleted {
		color.Green("done: run %s", summary.ID)
	}
}
