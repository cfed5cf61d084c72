package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/tenant-rag/internal/core/answer"
	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	openaiinfra "github.com/jinford/tenant-rag/internal/infra/openai"
	"github.com/jinford/tenant-rag/internal/infra/postgres"
	"github.com/jinford/tenant-rag/internal/platform/config"
	"github.com/jinford/tenant-rag/internal/platform/database"
)

// Container はアプリケーションの依存関係を組み立てて保持します
// すべて不変な設定から構築され、リクエスト間で共有される可変状態を持たない
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database *database.DB

	Store      *postgres.Store
	Sources    *postgres.SourceRepository
	Protocols  *postgres.ProtocolRepository
	WidgetKeys *postgres.WidgetRepository

	Embedder *openaiinfra.Embedder
	Chat     *openaiinfra.ChatClient

	IngestService   *ingestion.IngestService
	RetrieveService *retrieval.RetrieveService
	AnswerService   *answer.AnswerService
}

// New は設定から Container を構築します
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := postgres.InitSchema(ctx, db.Pool, cfg.OpenAI.EmbeddingDimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	store := postgres.NewStore(db.Pool)
	sources := postgres.NewSourceRepository(db.Pool)
	protocols := postgres.NewProtocolRepository(db.Pool)
	widgetKeys := postgres.NewWidgetRepository(db.Pool)

	embedder := openaiinfra.NewEmbedder(cfg.OpenAI.APIKey,
		openaiinfra.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openaiinfra.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)

	chat, err := openaiinfra.NewChatClient(cfg.OpenAI.APIKey,
		openaiinfra.WithChatModel(cfg.OpenAI.ChatModel),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("チャットクライアントの作成に失敗: %w", err)
	}

	chunker, err := ingestion.NewChunker(
		ingestion.WithMaxChars(cfg.Chunker.MaxChars),
		ingestion.WithOverlapChars(cfg.Chunker.OverlapChars),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("チャンカーの作成に失敗: %w", err)
	}

	ingestService := ingestion.NewIngestService(store, sources, embedder, chunker,
		ingestion.WithIngestLogger(logger),
	)

	retrieveService := retrieval.NewRetrieveService(store, embedder,
		retrieval.WithMinScore(cfg.Retrieval.MinScore),
		retrieval.WithRetrieveLogger(logger),
	)

	answerService := answer.NewAnswerService(retrieveService, chat, protocols,
		answer.WithMaxSteps(cfg.Answer.MaxSteps),
		answer.WithBudget(time.Duration(cfg.Answer.TimeoutSeconds)*time.Second),
		answer.WithAnswerLogger(logger),
	)

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Database:        db,
		Store:           store,
		Sources:         sources,
		Protocols:       protocols,
		WidgetKeys:      widgetKeys,
		Embedder:        embedder,
		Chat:            chat,
		IngestService:   ingestService,
		RetrieveService: retrieveService,
		AnswerService:   answerService,
	}, nil
}

// Close は保持するリソースをクリーンアップします
func (c *Container) Close() {
	if c.Database != nil {
		c.Database.Close()
	}
}
