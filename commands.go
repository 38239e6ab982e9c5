package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/life2you_mini/cloengine/internal/batch"
	"github.com/life2you_mini/cloengine/internal/config"
	"github.com/life2you_mini/cloengine/internal/engine"
	"github.com/life2you_mini/cloengine/internal/metrics"
	"github.com/life2you_mini/cloengine/internal/redis"
	"github.com/life2you_mini/cloengine/internal/services"
	"github.com/life2you_mini/cloengine/internal/storage"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run [snapshot.yaml]",
	Short: "模拟一笔交易，输出 JSON 结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := config.LoadDealSnapshot(args[0], cfg.Engine.DefaultPeriods)
		if err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("periods"); n > 0 {
			in.Periods = n
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng := engine.New(log, engine.WithWorkers(cfg.Engine.Workers))
		result, runErr := eng.Run(ctx, *in)
		if result != nil {
			full, _ := cmd.Flags().GetBool("full")
			if err := writeJSON(cmd, result, full); err != nil {
				return err
			}
		}
		return runErr
	},
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch [snapshot.yaml...]",
	Short: "并发模拟多个情景，每个快照文件一个情景",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios := make([]batch.Scenario, 0, len(args))
		for _, path := range args {
			in, err := config.LoadDealSnapshot(path, cfg.Engine.DefaultPeriods)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, batch.Scenario{Name: config.ScenarioName(path), Input: *in})
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := batch.NewRunner(engine.New(log), log,
			batch.WithWorkers(cfg.Engine.BatchWorkers),
			batch.WithEngineOptions(engine.WithWorkers(cfg.Engine.Workers)),
			batch.WithProgress(func(name string, p engine.Progress) {
				log.Debug("情景进度", zap.String("scenario", name), zap.Int("period", p.Period), zap.Int("total", p.Total))
			}))
		results := runner.Run(ctx, scenarios)

		full, _ := cmd.Flags().GetBool("full")
		if !full {
			for i := range results {
				if results[i].Run != nil {
					results[i].Run.Periods = nil
				}
			}
		}
		if err := writeJSON(cmd, results, true); err != nil {
			return err
		}
		if failed := batch.Failed(results); len(failed) > 0 {
			return fmt.Errorf("%d 个情景运行失败", len(failed))
		}
		return nil
	},
}

// --- enqueue ---

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [snapshot.yaml...]",
	Short: "将交易快照推送到任务队列",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := redis.NewRedisClient(ctx, redisOptions())
		if err != nil {
			return err
		}
		defer client.Close()

		queue := redis.NewQueueService(client, cfg.Redis.KeyPrefix)
		if reset, _ := cmd.Flags().GetBool("clear"); reset {
			if err := queue.ClearQueue(ctx, cfg.Worker.Queue); err != nil {
				return fmt.Errorf("清空队列失败: %w", err)
			}
			log.Info("队列已清空", zap.String("queue", cfg.Worker.Queue))
		}
		for _, path := range args {
			in, err := config.LoadDealSnapshot(path, cfg.Engine.DefaultPeriods)
			if err != nil {
				return err
			}
			id, err := services.Enqueue(ctx, queue, cfg.Worker.Queue, config.ScenarioName(path), *in)
			if err != nil {
				return err
			}
			log.Info("任务已入队", zap.String("job_id", id), zap.String("deal_id", in.Deal.ID))
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

// --- worker ---

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "消费任务队列，保存运行结果并暴露 Prometheus 指标",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client, err := redis.NewRedisClient(ctx, redisOptions())
		if err != nil {
			return err
		}
		store := storage.NewRedisStorage(client, cfg.Redis.KeyPrefix, cfg.Worker.ResultTTL(), log)
		defer store.Close(context.Background())
		if err := store.Health(ctx); err != nil {
			return fmt.Errorf("结果存储不可用: %w", err)
		}

		m := metrics.New()
		if cfg.Metrics.Enabled {
			srv := serveMetrics(m)
			defer srv.Close()
		}

		eng := engine.New(log, engine.WithWorkers(cfg.Engine.Workers))
		queue := redis.NewQueueService(client, cfg.Redis.KeyPrefix)
		worker := services.NewWorkerService(ctx, cfg.Worker, log, queue, store, eng, m)
		host, _ := os.Hostname()
		worker.SetLocker(redis.NewLocker(client, cfg.Redis.KeyPrefix), fmt.Sprintf("%s-%d", host, os.Getpid()))
		worker.Start()
		log.Info("服务已启动")

		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signalChan
		log.Info("接收到信号，准备关闭服务", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout())
		defer shutdownCancel()
		if err := worker.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("服务关闭失败: %w", err)
		}
		log.Info("服务已优雅关闭")
		return nil
	},
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result [job-id]",
	Short: "查询队列任务的运行记录与结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := redis.NewRedisClient(ctx, redisOptions())
		if err != nil {
			return err
		}
		store := storage.NewRedisStorage(client, cfg.Redis.KeyPrefix, 0, log)
		defer store.Close(ctx)

		record, err := store.GetRecord(ctx, args[0])
		if services.IsNotFound(err) {
			return fmt.Errorf("任务 %s 不存在或已过期", args[0])
		}
		if err != nil {
			return err
		}
		full, _ := cmd.Flags().GetBool("full")
		if !full {
			return writeJSON(cmd, record, true)
		}
		result, err := store.GetResult(ctx, args[0])
		if err != nil && !services.IsNotFound(err) {
			return err
		}
		return writeJSON(cmd, struct {
			Record interface{}       `json:"record"`
			Result *engine.RunResult `json:"result,omitempty"`
		}{record, result}, true)
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs [deal-id]",
	Short: "按完成时间倒序列出交易的运行记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := redis.NewRedisClient(ctx, redisOptions())
		if err != nil {
			return err
		}
		store := storage.NewRedisStorage(client, cfg.Redis.KeyPrefix, 0, log)
		defer store.Close(ctx)

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := store.ListRuns(ctx, args[0], limit)
		if err != nil {
			return err
		}
		return writeJSON(cmd, records, true)
	},
}

// --- config init ---

var configInitCmd = &cobra.Command{
	Use:   "config-init [path]",
	Short: "生成默认配置文件",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveConfigToFile(config.GetDefaultConfig(), args[0]); err != nil {
			return fmt.Errorf("写入配置文件失败: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已生成 %s\n", args[0])
		return nil
	},
}

func init() {
	runCmd.Flags().Int("periods", 0, "覆盖快照中的模拟期数")
	runCmd.Flags().Bool("full", false, "输出全部期间明细（默认只输出汇总）")
	batchCmd.Flags().Bool("full", false, "输出全部期间明细")
	resultCmd.Flags().Bool("full", false, "同时输出完整运行结果")
	enqueueCmd.Flags().Bool("clear", false, "入队前清空队列及延迟集合")
	runsCmd.Flags().Int("limit", 20, "最多列出的记录数")
}

func redisOptions() redis.ClientOptions {
	return redis.ClientOptions{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func serveMetrics(m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, m.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("指标服务退出", zap.Error(err))
		}
	}()
	log.Info("指标服务已启动", zap.String("listen", cfg.Metrics.Listen), zap.String("path", cfg.Metrics.Path))
	return srv
}

// writeJSON 输出 JSON；单次运行默认只输出汇总
func writeJSON(cmd *cobra.Command, v interface{}, full bool) error {
	if r, ok := v.(*engine.RunResult); ok && !full {
		v = struct {
			RunID    string         `json:"run_id"`
			DealID   string         `json:"deal_id"`
			Variant  string         `json:"variant"`
			Summary  engine.Summary `json:"summary"`
			Warnings interface{}    `json:"warnings,omitempty"`
		}{r.RunID, r.DealID, r.Variant, r.Summary, r.Warnings}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
