package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/chunker"
	"github.com/RecoveryAshes/PageChunker/internal/cleaner"
	"github.com/RecoveryAshes/PageChunker/internal/crawlers"
	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/RecoveryAshes/PageChunker/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 PAGECHUNKER_BATCH_SIZE
const EnvPrefix = "PAGECHUNKER"

// Config 应用程序配置
type Config struct {
	Logging     utils.LogConfig            `mapstructure:"logging"`
	Select      SelectConfig               `mapstructure:"select"`
	Batch       BatchConfig                `mapstructure:"batch"`
	Fetch       crawlers.FetchConfig       `mapstructure:"fetch"`
	Sufficiency crawlers.SufficiencyConfig `mapstructure:"sufficiency"`
	Render      crawlers.RenderConfig      `mapstructure:"render"`
	Clean       cleaner.Config             `mapstructure:"clean"`
	Chunk       chunker.Config             `mapstructure:"chunk"`
	Output      OutputConfig               `mapstructure:"output"`
	Metrics     MetricsConfig              `mapstructure:"metrics"`
}

// SelectConfig URL选择配置
type SelectConfig struct {
	MaxDepth int `mapstructure:"max_depth" validate:"gte=0"`
	Limit    int `mapstructure:"limit" validate:"gte=0"` // 0 表示不限
}

// BatchConfig 批处理配置
type BatchConfig struct {
	Size    int           `mapstructure:"size" validate:"gte=1"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"` // 单批超时, 0 表示不限
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir      string `mapstructure:"dir" validate:"required"`
	IndexDir string `mapstructure:"index_dir"` // 为空时不建立搜索索引
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // 如 :9090, 为空时不启动
}

// LoadConfig 加载配置文件
// configPath 为空时搜索 ./configs、当前目录和 ~/.pagechunker 下的 config.yaml, 找不到时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	// .env 中的变量先进入环境, 再由 AutomaticEnv 读取
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &models.ConfigError{FilePath: ".env", Cause: err}
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagechunker"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
		utils.Debug("未找到配置文件, 使用默认配置")
	} else {
		utils.Debugf("已加载配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}

	return &config, nil
}

// DefaultConfig 不读取任何文件的默认配置
func DefaultConfig() *Config {
	return &Config{
		Logging:     utils.DefaultLogConfig(),
		Select:      SelectConfig{MaxDepth: 2},
		Batch:       BatchConfig{Size: 100},
		Fetch:       crawlers.DefaultFetchConfig(),
		Sufficiency: crawlers.DefaultSufficiencyConfig(),
		Render:      crawlers.DefaultRenderConfig(),
		Clean:       cleaner.DefaultConfig(),
		Chunk:       chunker.DefaultConfig(),
		Output:      OutputConfig{Dir: "output"},
	}
}

// setDefaults 为每个键设置默认值, 同时让 AutomaticEnv 能识别这些键
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.LogDir)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.no_color", d.Logging.NoColor)

	v.SetDefault("select.max_depth", d.Select.MaxDepth)
	v.SetDefault("select.limit", d.Select.Limit)

	v.SetDefault("batch.size", d.Batch.Size)
	v.SetDefault("batch.timeout", d.Batch.Timeout)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retries", d.Fetch.Retries)
	v.SetDefault("fetch.backoff_base", d.Fetch.BackoffBase)
	v.SetDefault("fetch.max_body_bytes", d.Fetch.MaxBodyBytes)
	v.SetDefault("fetch.max_redirects", d.Fetch.MaxRedirects)
	v.SetDefault("fetch.permanent_statuses", d.Fetch.PermanentStatuses)
	v.SetDefault("fetch.skip_extensions", d.Fetch.SkipExtensions)
	v.SetDefault("fetch.respect_robots", d.Fetch.RespectRobots)
	v.SetDefault("fetch.insecure_tls", d.Fetch.InsecureTLS)
	v.SetDefault("fetch.headers", map[string]string{})
	v.SetDefault("fetch.rate.per_second", d.Fetch.Rate.PerSecond)
	v.SetDefault("fetch.rate.burst", d.Fetch.Rate.Burst)

	v.SetDefault("sufficiency.min_text_chars", d.Sufficiency.MinTextChars)
	v.SetDefault("sufficiency.min_structural_nodes", d.Sufficiency.MinStructuralNodes)
	v.SetDefault("sufficiency.block_phrases", d.Sufficiency.BlockPhrases)
	v.SetDefault("sufficiency.noscript_triggers", d.Sufficiency.NoscriptTriggers)
	v.SetDefault("sufficiency.keep_static_on_render_failure", d.Sufficiency.KeepStaticOnRenderFailure)

	v.SetDefault("render.enabled", d.Render.Enabled)
	v.SetDefault("render.headless", d.Render.Headless)
	v.SetDefault("render.browser_path", d.Render.BrowserPath)
	v.SetDefault("render.timeout", d.Render.Timeout)
	v.SetDefault("render.wait_time", d.Render.WaitTime)
	v.SetDefault("render.retries", d.Render.Retries)
	v.SetDefault("render.min_text_chars", d.Render.MinTextChars)
	v.SetDefault("render.max_content_bytes", d.Render.MaxContentBytes)
	v.SetDefault("render.max_pages", d.Render.MaxPages)
	v.SetDefault("render.max_relaunches", d.Render.MaxRelaunches)
	v.SetDefault("render.accept_consent", d.Render.AcceptConsent)
	v.SetDefault("render.scroll", d.Render.Scroll)

	v.SetDefault("clean.remove_selectors", d.Clean.RemoveSelectors)
	v.SetDefault("clean.detect_error_pages", d.Clean.DetectErrorPages)
	v.SetDefault("clean.default_language", d.Clean.DefaultLanguage)

	v.SetDefault("chunk.window", d.Chunk.Window)
	v.SetDefault("chunk.overlap", d.Chunk.Overlap)
	v.SetDefault("chunk.min_structural_chars", d.Chunk.MinStructuralChars)
	v.SetDefault("chunk.max_section_chars", d.Chunk.MaxSectionChars)
	v.SetDefault("chunk.token_encoding", d.Chunk.TokenEncoding)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.index_dir", d.Output.IndexDir)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// CLIFlags 命令行参数, nil 表示未指定
type CLIFlags struct {
	MaxDepth    *int
	BatchSize   *int
	Limit       *int
	OutputDir   *string
	Window      *int
	Overlap     *int
	NoRender    bool
	IndexDir    *string
	MetricsAddr *string
	LogLevel    *string
}

// MergeCLIFlags 合并命令行参数到配置, 命令行优先于配置文件
func (c *Config) MergeCLIFlags(f CLIFlags) {
	if f.MaxDepth != nil {
		c.Select.MaxDepth = *f.MaxDepth
	}
	if f.BatchSize != nil {
		c.Batch.Size = *f.BatchSize
	}
	if f.Limit != nil {
		c.Select.Limit = *f.Limit
	}
	if f.OutputDir != nil {
		c.Output.Dir = *f.OutputDir
	}
	if f.Window != nil {
		c.Chunk.Window = *f.Window
	}
	if f.Overlap != nil {
		c.Chunk.Overlap = *f.Overlap
	}
	if f.NoRender {
		c.Render.Enabled = false
	}
	if f.IndexDir != nil {
		c.Output.IndexDir = *f.IndexDir
	}
	if f.MetricsAddr != nil {
		c.Metrics.Addr = *f.MetricsAddr
	}
	if f.LogLevel != nil {
		c.Logging.Level = *f.LogLevel
	}
}

// validate 报错时使用 mapstructure 键名
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 校验配置, 在任何抓取之前调用
// 分块参数错误返回 *models.InvalidChunkConfigError
func (c *Config) Validate() error {
	if err := c.Chunk.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("配置项 %s 无效: 不满足 %s=%s (当前值 %v)", configKey(fe.Namespace()), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("校验配置失败: %w", err)
	}
	return nil
}

// configKey 去掉命名空间中的根类型名, Config.batch.size -> batch.size
func configKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
