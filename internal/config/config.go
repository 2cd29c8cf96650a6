// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize int64 // 単一ファイルの最大サイズ（バイト）

	// ジョブストア設定
	RedisHost        string // ジョブストア用Redisのホスト名
	RedisPort        string // ジョブストア用Redisのポート番号
	JobExpireSeconds int    // ジョブレコードのTTL（秒）

	// 変換サービス設定
	ConverterURL            string // 外部Markdown変換サービスのベースURL
	ConverterTimeoutSeconds int    // 変換リクエストのタイムアウト（秒）

	// ワークスペース設定
	WorkDir string // ジョブ作業ディレクトリのベースパス
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB

		// ジョブストア設定
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		JobExpireSeconds: getEnvAsInt("JOB_EXPIRE_SECONDS", 86400), // 24時間

		// 変換サービス設定
		ConverterURL:            getEnv("CONVERTER_URL", "http://127.0.0.1:5001"),
		ConverterTimeoutSeconds: getEnvAsInt("CONVERTER_TIMEOUT_SECONDS", 120),

		// ワークスペース設定
		WorkDir: getEnv("WORK_DIR", filepath.Join(os.TempDir(), "markdown-forge")),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではデフォルト値で動作する
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.ConverterURL == "" {
			return fmt.Errorf("CONVERTER_URL is required in release mode")
		}
		if c.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required in release mode")
		}
	}
	if c.JobExpireSeconds <= 0 {
		return fmt.Errorf("JOB_EXPIRE_SECONDS must be positive")
	}

	return nil
}

// RedisAddr はジョブストア用Redisの接続アドレスを返します。
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, c.RedisPort)
}

// JobTTL はジョブレコードのTTLを返します。
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobExpireSeconds) * time.Second
}

// ConverterTimeout は変換リクエストのタイムアウトを返します。
func (c *Config) ConverterTimeout() time.Duration {
	return time.Duration(c.ConverterTimeoutSeconds) * time.Second
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
