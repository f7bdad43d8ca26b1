// Package main provides the graphcore demo CLI: a single-process,
// single-worker instance of the query execution core, usable as a REPL
// (shell), a plan printer (explain), or a long-running placeholder server
// (serve). Grounded on cmd/nornicdb/main.go's cobra command tree, scoped
// down to the concerns this module actually implements — no Bolt/HTTP
// protocol servers, no auth, no embeddings.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nornic-labs/graphcore/pkg/gconfig"
	"github.com/nornic-labs/graphcore/pkg/gstore"
	"github.com/nornic-labs/graphcore/pkg/interpreter"
	"github.com/nornic-labs/graphcore/pkg/refplan"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphcored",
		Short: "graphcore - Cypher query execution core over a sharded property graph",
		Long: `graphcored runs the query execution core standalone: a pull-based
operator tree over an in-memory transactional graph store, driven by a
tiny Cypher-subset planner.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphcored v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a single-worker instance and block until interrupted",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to a graphcore config file (YAML)")
	rootCmd.AddCommand(serveCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive Cypher shell over an in-memory graph",
		RunE:  runShell,
	}
	shellCmd.Flags().String("config", "", "Path to a graphcore config file (YAML)")
	rootCmd.AddCommand(shellCmd)

	explainCmd := &cobra.Command{
		Use:   "explain [query]",
		Short: "Print the operator tree a query compiles to, without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}
	rootCmd.AddCommand(explainCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*gconfig.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := gconfig.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLocalInterpreter(cfg *gconfig.Config) *interpreter.Interpreter {
	engine := gstore.NewMemoryEngine(0)
	return interpreter.NewWithConfig(engine, refplan.Parse, cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// newLocalInterpreter builds the same Interpreter a protocol frontend
	// would drive; none is wired into this demo binary, so serve only
	// keeps the process alive until interrupted.
	_ = newLocalInterpreter(cfg)
	fmt.Printf("graphcored listening at %s (workers=%d, plan cache=%d entries/%s)\n",
		cfg.ListenAddress, cfg.WorkerCount, cfg.PlanCacheSize, cfg.PlanCacheTTL)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down...")
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in := newLocalInterpreter(cfg)
	fmt.Println("connected to an in-memory single-worker graph")
	fmt.Println("type 'exit' or Ctrl+D to quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	var txID uint64

	for {
		fmt.Print("graphcore> ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		txID++
		res, err := in.Execute(ctx, txID, query, nil)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(res)
	}
	return nil
}

func printResult(res *interpreter.Result) {
	if len(res.Columns) == 0 {
		fmt.Printf("(%d rows)\n\n", len(res.Rows))
		return
	}
	header := strings.Join(res.Columns, " | ")
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", len(header)))
	for _, row := range res.Rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = v.GoString()
		}
		fmt.Println(strings.Join(values, " | "))
	}
	fmt.Printf("(%d rows)\n\n", len(res.Rows))
}

func runExplain(cmd *cobra.Command, args []string) error {
	engine := gstore.NewMemoryEngine(0)
	in := interpreter.New(engine, refplan.Parse)

	text, _, err := in.Explain(args[0])
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	fmt.Print(text)
	return nil
}
