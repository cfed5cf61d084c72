package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/tenant-rag/cmd/tenant-rag/commands"
	"github.com/urfave/cli/v3"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログは各コマンドの AppContext 初期化時に platform/logger が設定する

	app := &cli.Command{
		Name:  "tenant-rag",
		Usage: "マルチテナント知識検索エンジン",
		Commands: []*cli.Command{
			{
				Name:  "source",
				Usage: "ソース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "ingest",
						Usage: "抽出済みテキストをテナントのインデックスへ取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "uploader",
								Usage:    "アップロードユーザーコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "name",
								Usage:    "ソース名（ファイル名または URL）",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "type",
								Usage: "ソース種別 (document|website)",
								Value: "document",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "テキストファイルパス（省略時は標準入力）",
							},
						},
						Action: commands.SourceIngestAction,
					},
					{
						Name:  "delete",
						Usage: "ソースとそのベクトルを削除する",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "name",
								Usage:    "ソース名",
								Required: true,
							},
						},
						Action: commands.SourceDeleteAction,
					},
					{
						Name:  "list",
						Usage: "テナント配下のソース一覧を表示する",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "uploader",
								Usage: "アップロードユーザーで絞り込む",
							},
						},
						Action: commands.SourceListAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "質問応答コマンド",
				Commands: []*cli.Command{
					{
						Name:      "user",
						Usage:     "認証済みユーザーとして質問する",
						ArgsUsage: "<question>",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "user",
								Usage:    "ユーザーコード",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "mine",
								Usage: "自分のアップロード分だけを対象にする",
							},
							&cli.StringFlag{
								Name:  "source-type",
								Usage: "ソース種別で絞り込む (document|website)",
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "取得パッセージ数",
								Value: 8,
							},
						},
						Action: commands.AskUserAction,
					},
					{
						Name:      "widget",
						Usage:     "ウィジェットキーで質問する（公開・読み取り専用）",
						ArgsUsage: "<question>",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "key",
								Usage:    "ウィジェットキー",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "source-type",
								Usage: "ソース種別で絞り込む (document|website)",
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "取得パッセージ数",
								Value: 8,
							},
						},
						Action: commands.AskWidgetAction,
					},
					{
						Name:      "admin",
						Usage:     "管理者として任意のテナントに質問する（対象テナントの外には出ない）",
						ArgsUsage: "<question>",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "検査対象のテナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "source-type",
								Usage: "ソース種別で絞り込む (document|website)",
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "取得パッセージ数",
								Value: 8,
							},
						},
						Action: commands.AskAdminAction,
					},
				},
			},
			{
				Name:  "widget",
				Usage: "ウィジェットキー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "key",
						Usage: "テナントのウィジェットキーを表示する（なければ発行）",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
						},
						Action: commands.WidgetKeyAction,
					},
					{
						Name:  "regenerate",
						Usage: "テナントのウィジェットキーを再発行する（既存キーは無効になる）",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
						},
						Action: commands.WidgetRegenerateAction,
					},
				},
			},
			{
				Name:  "protocol",
				Usage: "プロトコル記録管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "set",
						Usage: "ユーザーのプロトコル記録を保存する",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "tenant",
								Usage:    "テナントコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "user",
								Usage:    "ユーザーコード",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "記録テキストファイルパス（省略時は標準入力）",
							},
						},
						Action: commands.ProtocolSetAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
