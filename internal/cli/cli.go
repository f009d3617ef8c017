package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dpetranov/coopsched/internal/config"
	"github.com/dpetranov/coopsched/internal/log"
	"github.com/dpetranov/coopsched/internal/monitor"
	"github.com/dpetranov/coopsched/internal/server"
	"github.com/dpetranov/coopsched/pkg/models"
	"github.com/dpetranov/coopsched/pkg/scheduler"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the HTTP adapter",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath, err := cmd.Flags().GetString("config")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving config flag: %v", err)
				os.Exit(1)
			}
			if err := runServe(cfgPath); err != nil {
				log.GetLogger().Errorf("serve failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("config", "", "Path to YAML config file")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch and print scheduler statistics",
		Run: func(cmd *cobra.Command, args []string) {
			addr, err := cmd.Flags().GetString("addr")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving addr flag: %v", err)
				os.Exit(1)
			}
			if err := printStats(addr); err != nil {
				log.GetLogger().Errorf("stats failed: %v", err)
				os.Exit(1)
			}
		},
	}
	statsCmd.Flags().String("addr", "http://localhost:8080", "Scheduler server address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
}

func runServe(cfgPath string) error {
	logger := log.GetLogger()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.SchedulerConfig(), logger)
	registerBuiltins(sched)

	mon := monitor.New(sched, monitor.Thresholds{
		PollInterval:      time.Duration(cfg.Monitor.PollIntervalMS) * time.Millisecond,
		QueueDepthWarn:    cfg.Monitor.QueueDepthWarn,
		AvgWaitWarn:       time.Duration(cfg.Monitor.AvgWaitWarnMS) * time.Millisecond,
		FailureBurstWarn:  cfg.Monitor.FailureBurstWarn,
		OverflowBurstWarn: cfg.Monitor.OverflowBurstWarn,
	}, logger)

	sched.Start()
	defer sched.Stop()
	mon.Start()
	defer mon.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(sched, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting coopsched server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// registerBuiltins installs the demo executors the standalone server ships
// with. Embedding programs register their own instead.
func registerBuiltins(sched *scheduler.Scheduler) {
	_ = sched.RegisterExecutors(map[string]scheduler.Executor{
		"noop": func(ctx context.Context, ec *scheduler.ExecContext) (any, error) {
			return ec.Data(), nil
		},
		"sleep": func(ctx context.Context, ec *scheduler.ExecContext) (any, error) {
			ms, _ := ec.Data().(float64) // JSON numbers arrive as float64
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return "slept", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
}

func printStats(addr string) error {
	resp, err := http.Get(addr + "/api/v1/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var st models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return err
	}
	fmt.Printf("Tasks:      %s total (%d queued, %d blocked, %d running)\n",
		humanize.Comma(int64(st.TotalTasks)), st.Queued(), st.Blocked, st.Running)
	fmt.Printf("Outcomes:   %s completed, %s failed, %s cancelled\n",
		humanize.Comma(int64(st.Completed)), humanize.Comma(int64(st.Failed)), humanize.Comma(int64(st.Cancelled)))
	fmt.Printf("Latency:    avg wait %s, avg exec %s\n", st.AvgWaitTime, st.AvgExecTime)
	fmt.Printf("Loop:       last tick %s, %.1f ticks/s\n", st.LastTickDuration, st.TicksPerSecond)
	return nil
}
