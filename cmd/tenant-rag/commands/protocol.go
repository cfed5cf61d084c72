package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"
)

// ProtocolSetAction はユーザーのプロトコル記録を保存するコマンドのアクション
func ProtocolSetAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	user := cmd.String("user")
	filePath := cmd.String("file")
	envFile := cmd.String("env")

	content, err := readTextInput(filePath)
	if err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("プロトコル記録が空です")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Protocols.SaveProtocolRecord(ctx, tenant, user, content); err != nil {
		slog.Error("プロトコル記録の保存に失敗しました", "error", err)
		return err
	}

	slog.Info("プロトコル記録を保存しました", "tenant", tenant, "user", user)
	return nil
}
