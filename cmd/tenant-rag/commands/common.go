package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jinford/tenant-rag/internal/platform/config"
	"github.com/jinford/tenant-rag/internal/platform/container"
	"github.com/jinford/tenant-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.Container
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	cont, err := container.New(ctx, appLogger, cfg)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger
	}
	return slog.Default()
}

// readTextInput はファイルパスまたは標準入力からテキストを読み込む
func readTextInput(filePath string) (string, error) {
	if filePath == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}
	return string(data), nil
}

// questionArg はコマンドの第一引数から質問文を取り出す
func questionArg(args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return "", fmt.Errorf("質問文を引数で指定してください")
	}
	return question, nil
}
