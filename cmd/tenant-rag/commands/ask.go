package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// AskUserAction は認証済みユーザーとして質問するコマンドのアクション
func AskUserAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	user := cmd.String("user")
	mine := cmd.Bool("mine")
	envFile := cmd.String("env")

	question, err := questionArg(cmd.Args().Slice())
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("質問応答を開始", "tenant", tenant, "user", user, "restrictToUser", mine)

	isolation := retrieval.NewUserContext(tenant, user, mine)
	return runAnswer(ctx, appCtx, cmd, isolation, question)
}

// AskWidgetAction はウィジェットキーで質問するコマンドのアクション
// キーはちょうど1テナントに解決され、それ以外のスコープ指定は受け付けない
func AskWidgetAction(ctx context.Context, cmd *cli.Command) error {
	key := cmd.String("key")
	envFile := cmd.String("env")

	question, err := questionArg(cmd.Args().Slice())
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tenant, err := appCtx.Container.WidgetKeys.ResolveKey(ctx, key)
	if err != nil {
		slog.Error("ウィジェットキーの解決に失敗しました", "error", err)
		return err
	}

	slog.Info("ウィジェット質問応答を開始", "tenant", tenant)

	isolation := retrieval.NewWidgetContext(tenant)
	return runAnswer(ctx, appCtx, cmd, isolation, question)
}

// AskAdminAction は管理者として対象テナントに質問するコマンドのアクション
func AskAdminAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	envFile := cmd.String("env")

	question, err := questionArg(cmd.Args().Slice())
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("管理者質問応答を開始", "tenant", tenant)

	isolation := retrieval.NewAdminContext(tenant)
	return runAnswer(ctx, appCtx, cmd, isolation, question)
}

// runAnswer は分離コンテキストの範囲で回答を生成し、標準出力へ表示する
func runAnswer(ctx context.Context, appCtx *AppContext, cmd *cli.Command, isolation retrieval.IsolationContext, question string) error {
	params := retrieval.RetrieveParams{
		Question: question,
		TopK:     cmd.Int("top-k"),
	}
	if st := cmd.String("source-type"); st != "" {
		sourceType := vectorindex.SourceType(st)
		params.SourceType = &sourceType
	}

	result, err := appCtx.Container.AnswerService.Answer(ctx, isolation, params)
	if err != nil {
		slog.Error("回答生成に失敗しました", "error", err)
		return err
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Printf("\n参照ソース: %s\n", strings.Join(result.Sources, ", "))
	}
	return nil
}
