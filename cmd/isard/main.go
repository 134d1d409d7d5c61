// file: cmd/isard/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/luiz158/isar/internal/adapter/engine/sqlite"
	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/isarobserve"
	"github.com/luiz158/isar/internal/transport/http/router"
)

const version = "v0.3.0"

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type StorageConfig struct {
	Directory string `mapstructure:"directory"`
}

// SchemaConfig 指向一个启动时预打开的实例声明文件
type SchemaConfig struct {
	Name string `mapstructure:"name"`
	File string `mapstructure:"file"`
}

type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Storage StorageConfig  `mapstructure:"storage"`
	Schemas []SchemaConfig `mapstructure:"schemas"`
}

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("isard %s 正在启动...", version)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("storage.directory", "./data")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("CRITICAL: 读取配置文件失败: %v", err)
		}
		log.Println("ℹ️  未找到配置文件，使用默认配置。")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("CRITICAL: 解析配置到结构体失败: %v", err)
	}

	isarobserve.InitLogger(config.Server.LogLevel)
	slog.Info("isard starting up", "version", version)

	storageDir, err := filepath.Abs(config.Storage.Directory)
	if err != nil {
		log.Fatalf("CRITICAL: 解析存储目录失败: %v", err)
	}
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		log.Fatalf("CRITICAL: 创建存储目录 '%s' 失败: %v", storageDir, err)
	}
	slog.Info("存储目录就绪", "path", storageDir)

	registry := sqlite.NewRegistry()

	// 按配置预打开实例
	for _, sc := range config.Schemas {
		data, err := os.ReadFile(sc.File)
		if err != nil {
			log.Fatalf("CRITICAL: 读取 schema 文件 '%s' 失败: %v", sc.File, err)
		}
		schema, err := domain.SchemaFromJSON(data)
		if err != nil {
			log.Fatalf("CRITICAL: 解析 schema 文件 '%s' 失败: %v", sc.File, err)
		}
		inst, err := registry.OpenOrGet(sc.Name, storageDir, schema)
		if err != nil {
			log.Fatalf("CRITICAL: 打开实例 '%s' 失败: %v", sc.Name, err)
		}
		slog.Info("实例已打开", "name", inst.Name(), "path", inst.Path(),
			"fingerprint", fmt.Sprintf("%016x", inst.SchemaFingerprint()))
	}

	watcher, err := registry.StartWatcher(storageDir)
	if err != nil {
		slog.Warn("存储目录监视启动失败，外部改动将不会被发现", "error", err)
	} else {
		defer func() { _ = watcher.Close() }()
		slog.Info("后台任务: 存储目录监视已启动。")
	}

	httpRouter := router.New(router.Dependencies{
		Registry:   registry,
		StorageDir: storageDir,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpRouter,
	}

	go func() {
		slog.Info("isard 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	isarobserve.Register()
	slog.Info("监控: metrics 已注册。")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到停机信号，准备优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
		os.Exit(1)
	}

	slog.Info("HTTP服务已成功关闭。")
	slog.Info("程序即将退出。")
}
