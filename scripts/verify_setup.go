package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/RecoveryAshes/PageChunker/internal/core"
	"github.com/RecoveryAshes/PageChunker/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  PageChunker 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s, CPU核数: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())

	// 配置文件
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		allOK = false
		cfg = core.DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ 配置校验失败: %v\n", err)
		allOK = false
	} else {
		fmt.Println("✅ 配置校验通过")
	}

	// 渲染回退需要本机的 Chromium/Chrome
	if cfg.Render.BrowserPath != "" {
		if _, err := os.Stat(cfg.Render.BrowserPath); err == nil {
			fmt.Printf("✅ 浏览器: %s\n", cfg.Render.BrowserPath)
		} else {
			fmt.Printf("❌ 配置的浏览器不存在: %s\n", cfg.Render.BrowserPath)
			allOK = false
		}
	} else if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本机浏览器 - 首次渲染时 go-rod 会自动下载 Chromium")
		fmt.Println("   或使用 --no-render 禁用渲染回退")
	}

	// 可用内存决定渲染标签页数
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("✅ 可用内存: %.0f MB\n", float64(vm.Available)/(1024*1024))
		monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{MaxPages: cfg.Render.MaxPages})
		fmt.Printf("✅ 渲染标签页上限: %d\n", monitor.MaxPages())
	} else {
		fmt.Printf("⚠️  读取内存信息失败: %v\n", err)
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/pagechunker",
		"internal/core",
		"internal/crawlers",
		"internal/cleaner",
		"internal/chunker",
		"internal/models",
		"internal/utils",
		"configs",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/pagechunker' 构建项目")
		fmt.Println("  2. 运行 './pagechunker --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
