package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/chunker"
	"github.com/RecoveryAshes/PageChunker/internal/cleaner"
	"github.com/RecoveryAshes/PageChunker/internal/core"
	"github.com/RecoveryAshes/PageChunker/internal/crawlers"
	"github.com/RecoveryAshes/PageChunker/internal/index"
	"github.com/RecoveryAshes/PageChunker/internal/metrics"
	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/RecoveryAshes/PageChunker/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 运行参数
	urlMaps     []string
	maxDepth    int
	batchSize   int
	limit       int
	outputDir   string
	window      int
	overlap     int
	noRender    bool
	indexDir    string
	metricsAddr string

	// search 参数
	searchIndex  string
	searchMethod string
	searchLimit  int
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "pagechunker",
	Short: "网页抓取、清洗与分块工具",
	Long: `PageChunker - 按深度读取URL映射, 抓取页面, 清洗正文并生成两种分块

处理流程:
  • 按 --max-depth 和 --limit 选择URL
  • 快速HTTP抓取, 内容不足时用无头浏览器渲染
  • 去除导航、页脚等模板内容, 保留标题与段落结构
  • 结构分块(按标题层级)和定长分块(窗口+重叠)
  • 输出 full_text.json、structural_chunks.json、fixed_chunks.json 等文件

示例:
  pagechunker -m crawl/urls_by_depth.json --max-depth 1
  pagechunker -m 'maps/**/*.json' --batch-size 20 --window 800 --overlap 100
  pagechunker -m urls.json -H "Authorization: Bearer token" --index output/chunks.bleve
  pagechunker search --index output/chunks.bleve "beamline safety"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if !cmd.HasParent() {
			config.MergeCLIFlags(collectCLIFlags(cmd))
		} else if cmd.Flags().Changed("log-level") {
			config.MergeCLIFlags(core.CLIFlags{LogLevel: &logLevel})
		}
		if verbose {
			config.Logging.Level = "debug"
		}

		if err := utils.InitLogger(config.Logging); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		headerManager, err := core.NewHeaderManager(appConfig.Fetch.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if len(urlMaps) == 0 {
			_ = cmd.Help()
			return errors.New("必须通过 --url-map 指定至少一个URL映射文件")
		}

		if err := ValidateFlags(appConfig); err != nil {
			return err
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部配置无效: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, appConfig, headerManager)
	},
}

// run 执行一次完整的处理
func run(ctx context.Context, cfg *core.Config, headerManager *core.HeaderManager) error {
	urlMap, err := utils.LoadURLMaps(urlMaps...)
	if err != nil {
		return err
	}
	records, err := core.Select(urlMap, cfg.Select.MaxDepth, cfg.Select.Limit)
	if err != nil {
		return err
	}
	utils.Infof("🎯 已选择 %d 个URL (max_depth=%d, limit=%d)", len(records), cfg.Select.MaxDepth, cfg.Select.Limit)

	ch, err := chunker.New(cfg.Chunk)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				utils.Errorf("指标服务启动失败: %v", err)
			}
		}()
	}

	var renderer crawlers.Renderer
	if cfg.Render.Enabled {
		rr := crawlers.NewRodRenderer(cfg.Render, m)
		defer rr.Close()
		renderer = rr
	} else {
		utils.Info("🚫 浏览器渲染回退已禁用")
	}

	fetcher := crawlers.NewFetcher(crawlers.FetcherOptions{
		Fetch:       cfg.Fetch,
		Sufficiency: cfg.Sufficiency,
		Render:      cfg.Render,
		Headers:     headerManager,
		Renderer:    renderer,
		Metrics:     m,
	})
	processor := core.NewPageProcessor(fetcher, cleaner.New(cfg.Clean), ch, m)
	coordinator := core.NewBatchCoordinator(processor, cfg.Batch, true)

	info := utils.RunInfo{
		RunID:     models.NewRunID(),
		StartTime: time.Now(),
		Config:    configSnapshot(cfg),
	}
	utils.Debugf("运行ID: %s", info.RunID)

	results, runErr := coordinator.Run(ctx, records)
	info.EndTime = time.Now()
	info.Interrupted = runErr != nil

	// 中断时同样写出已完成的记录
	reporter := utils.NewReporter(cfg.Output.Dir)
	if err := reporter.WriteAll(results, info); err != nil {
		return fmt.Errorf("写出结果失败: %w", err)
	}
	utils.Infof("💾 结果已写入: %s", reporter.OutputDir())

	if cfg.Output.IndexDir != "" {
		if err := buildIndex(cfg.Output.IndexDir, results); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("运行被中断, 已写出 %d/%d 条记录: %w", len(results), len(records), runErr)
	}

	utils.Info("✨ 处理完成!")
	return nil
}

// buildIndex 把分块写入搜索索引
func buildIndex(dir string, results []models.PageRecord) error {
	ci, err := index.Create(dir)
	if err != nil {
		return err
	}
	defer ci.Close()

	n, err := ci.IndexRecords(results)
	if err != nil {
		return fmt.Errorf("建立索引失败: %w", err)
	}
	utils.Infof("🔎 已索引 %d 个分块: %s", n, dir)
	return nil
}

// configSnapshot 写入运行报告的配置副本, 敏感头部脱敏
func configSnapshot(cfg *core.Config) core.Config {
	snapshot := *cfg
	if len(cfg.Fetch.Headers) > 0 {
		h := make(http.Header, len(cfg.Fetch.Headers))
		for name, value := range cfg.Fetch.Headers {
			h.Set(name, value)
		}
		snapshot.Fetch.Headers = utils.NewHeaderRedactor().Redact(h)
	}
	return snapshot
}

// runValidateConfig 校验配置与HTTP头部并打印结果
func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

// collectCLIFlags 只收集用户显式指定的参数
func collectCLIFlags(cmd *cobra.Command) core.CLIFlags {
	flags := cmd.Flags()
	var f core.CLIFlags
	if flags.Changed("max-depth") {
		f.MaxDepth = &maxDepth
	}
	if flags.Changed("batch-size") {
		f.BatchSize = &batchSize
	}
	if flags.Changed("limit") {
		f.Limit = &limit
	}
	if flags.Changed("output") {
		f.OutputDir = &outputDir
	}
	if flags.Changed("window") {
		f.Window = &window
	}
	if flags.Changed("overlap") {
		f.Overlap = &overlap
	}
	if flags.Changed("index") {
		f.IndexDir = &indexDir
	}
	if flags.Changed("metrics-addr") {
		f.MetricsAddr = &metricsAddr
	}
	if flags.Changed("log-level") {
		f.LogLevel = &logLevel
	}
	f.NoRender = noRender
	return f
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "检索分块索引",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateSearchFlags(searchIndex, searchMethod, searchLimit); err != nil {
			return err
		}

		ci, err := index.Open(searchIndex)
		if err != nil {
			return err
		}
		defer ci.Close()

		query := strings.Join(args, " ")
		hits, err := ci.Search(query, searchMethod, searchLimit)
		if err != nil {
			return err
		}

		if len(hits) == 0 {
			fmt.Printf("没有找到与 %q 匹配的分块\n", query)
			return nil
		}
		for i, h := range hits {
			fmt.Printf("%d. [%.3f] %s (%s #%d)\n", i+1, h.Score, h.URL, h.Method, h.ChunkIndex)
			if h.Heading != "" {
				fmt.Printf("   标题: %s\n", h.Heading)
			}
			fmt.Printf("   %s\n", h.Fragment)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PageChunker %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 运行参数
	rootCmd.Flags().StringArrayVarP(&urlMaps, "url-map", "m", nil, "URL映射文件或通配符 (必需, 可多次指定)")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 2, "包含深度小于等于此值的URL")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 100, "每批并发处理的URL数")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "最多处理的URL数 (0 表示不限)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().IntVar(&window, "window", 500, "定长分块窗口(字符)")
	rootCmd.Flags().IntVar(&overlap, "overlap", 75, "定长分块重叠(字符)")
	rootCmd.Flags().BoolVar(&noRender, "no-render", false, "禁用浏览器渲染回退")
	rootCmd.Flags().StringVar(&indexDir, "index", "", "bleve 索引目录, 为空时不建立索引")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址, 如 :9090")

	// search 参数
	searchCmd.Flags().StringVar(&searchIndex, "index", "", "bleve 索引目录 (必需)")
	searchCmd.Flags().StringVar(&searchMethod, "method", "", "分块方式 (structural|fixed), 为空时都检索")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "最多返回的结果数")
	_ = searchCmd.MarkFlagRequired("index")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
