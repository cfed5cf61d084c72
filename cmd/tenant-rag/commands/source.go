package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// SourceIngestAction はテキストをテナントのインデックスへ取り込むコマンドのアクション
func SourceIngestAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	uploader := cmd.String("uploader")
	name := cmd.String("name")
	sourceType := vectorindex.SourceType(cmd.String("type"))
	filePath := cmd.String("file")
	envFile := cmd.String("env")

	text, err := readTextInput(filePath)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("ソース取り込みを開始",
		"tenant", tenant,
		"uploader", uploader,
		"source", name,
		"sourceType", sourceType,
	)

	result, err := appCtx.Container.IngestService.Ingest(ctx, ingestion.IngestParams{
		TenantCode:   tenant,
		UploaderCode: uploader,
		SourceName:   name,
		SourceType:   sourceType,
		Text:         text,
	})
	if err != nil {
		slog.Error("ソース取り込みに失敗しました", "error", err)
		return err
	}

	slog.Info("ソース取り込みが完了しました",
		"sourceID", result.SourceID,
		"vectorsWritten", result.VectorsWritten,
		"duration", result.Duration,
	)

	fmt.Printf("取り込み完了: %s (%d ベクトル, %s)\n", name, result.VectorsWritten, result.Duration)
	return nil
}

// SourceDeleteAction はソースとそのベクトルを削除するコマンドのアクション
func SourceDeleteAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	name := cmd.String("name")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("ソース削除を開始", "tenant", tenant, "source", name)

	result, err := appCtx.Container.IngestService.DeleteSource(ctx, tenant, name)
	if err != nil {
		slog.Error("ソース削除に失敗しました", "error", err)
		return err
	}

	slog.Info("ソース削除が完了しました", "vectorsRemoved", result.VectorsRemoved)
	fmt.Printf("削除完了: %s (%d ベクトル)\n", name, result.VectorsRemoved)
	return nil
}

// SourceListAction はテナント配下のソース一覧を表示するコマンドのアクション
func SourceListAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	uploader := cmd.String("uploader")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var uploaderFilter *string
	if uploader != "" {
		uploaderFilter = &uploader
	}

	sources, err := appCtx.Container.IngestService.ListSources(ctx, tenant, uploaderFilter)
	if err != nil {
		slog.Error("ソース一覧の取得に失敗しました", "error", err)
		return err
	}

	if len(sources) == 0 {
		fmt.Println("ソースがありません")
		return nil
	}

	for _, s := range sources {
		fmt.Printf("%s\t%s\t%s\tchunks=%d\tuploader=%s\tupdated=%s\n",
			s.ID, s.SourceType, s.SourceName, s.ChunkCount, s.UploaderCode,
			s.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}
