package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// WidgetKeyAction はテナントのウィジェットキーを表示するコマンドのアクション
// キーが未発行の場合は新規に発行する
func WidgetKeyAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	key, err := appCtx.Container.WidgetKeys.GetOrIssueKey(ctx, tenant)
	if err != nil {
		slog.Error("ウィジェットキーの取得に失敗しました", "error", err)
		return err
	}

	fmt.Println(key)
	return nil
}

// WidgetRegenerateAction はテナントのウィジェットキーを再発行するコマンドのアクション
func WidgetRegenerateAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	key, err := appCtx.Container.WidgetKeys.RegenerateKey(ctx, tenant)
	if err != nil {
		slog.Error("ウィジェットキーの再発行に失敗しました", "error", err)
		return err
	}

	slog.Info("ウィジェットキーを再発行しました", "tenant", tenant)
	fmt.Println(key)
	return nil
}
