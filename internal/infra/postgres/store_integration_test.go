package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// テスト用の埋め込み次元。実運用の次元に依存する検証はここにはない
const testDimension = 3

var testPool *pgxpool.Pool

// TestMain は pgvector 入りの PostgreSQL コンテナを起動し、テスト全体で共有する
func TestMain(m *testing.M) {
	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Printf("dockertest プールの作成に失敗。統合テストをスキップします: %v", err)
		os.Exit(m.Run())
	}
	if err := pool.Client.Ping(); err != nil {
		log.Printf("Docker に接続できません。統合テストをスキップします: %v", err)
		os.Exit(m.Run())
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=tenantrag_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("コンテナの起動に失敗: %v", err)
	}
	_ = resource.Expire(300)

	connString := fmt.Sprintf(
		"host=localhost port=%s user=testuser password=testpass dbname=tenantrag_test sslmode=disable",
		resource.GetPort("5432/tcp"),
	)

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		p, err := pgxpool.New(ctx, connString)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		testPool = p
		return nil
	}); err != nil {
		log.Fatalf("データベースへの接続に失敗: %v", err)
	}

	if err := InitSchema(context.Background(), testPool, testDimension); err != nil {
		log.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pool.Purge(resource); err != nil {
		log.Printf("コンテナの破棄に失敗: %v", err)
	}
	os.Exit(code)
}

func requireTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("short モードでは統合テストをスキップします")
	}
	if testPool == nil {
		t.Skip("Docker が利用できないため統合テストをスキップします")
	}
	return testPool
}

func cleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	for _, table := range []string{"tenant_vectors", "sources", "protocol_records", "widget_keys"} {
		_, err := pool.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
}

func testRecord(id, tenant, uploader, source string, chunkIndex int, embedding []float32) vectorindex.Record {
	return vectorindex.Record{
		ID:        id,
		Embedding: embedding,
		Content:   "content of " + id,
		Metadata: vectorindex.Metadata{
			TenantCode:   tenant,
			UploaderCode: uploader,
			SourceType:   vectorindex.SourceTypeDocument,
			SourceName:   source,
			ChunkIndex:   chunkIndex,
		},
	}
}

// TestStoreUpsertAndQuery は書き込みと類似度検索の往復をテストします
func TestStoreUpsertAndQuery(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	records := []vectorindex.Record{
		testRecord("a-1", "clinic-a", "user-1", "guide.pdf", 0, []float32{1, 0, 0}),
		testRecord("a-2", "clinic-a", "user-2", "faq.html", 0, []float32{0, 1, 0}),
	}
	require.NoError(t, store.Upsert(ctx, "clinic-a", records))

	matches, err := store.Query(ctx, "clinic-a", []float32{1, 0, 0}, 10, vectorindex.Filter{
		TenantCode: "clinic-a",
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// コサイン類似度: 同一方向は 1.0、直交は 0.0
	assert.Equal(t, "a-1", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
	assert.InDelta(t, 0.0, matches[1].Score, 0.001)
	assert.Equal(t, "clinic-a", matches[0].Metadata.TenantCode)
	assert.Equal(t, "guide.pdf", matches[0].Metadata.SourceName)
}

// TestStoreUpsertOverwritesSameID は同一 (namespace, id) への再書き込みが上書きになることをテストします
func TestStoreUpsertOverwritesSameID(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "clinic-a", []vectorindex.Record{
		testRecord("a-1", "clinic-a", "user-1", "guide.pdf", 0, []float32{1, 0, 0}),
	}))

	updated := testRecord("a-1", "clinic-a", "user-1", "guide.pdf", 0, []float32{0, 0, 1})
	updated.Content = "updated content"
	require.NoError(t, store.Upsert(ctx, "clinic-a", []vectorindex.Record{updated}))

	matches, err := store.Query(ctx, "clinic-a", []float32{0, 0, 1}, 10, vectorindex.Filter{
		TenantCode: "clinic-a",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "updated content", matches[0].Content)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
}

// TestStoreDoubleIsolation は namespace とメタデータフィルタが独立にクロステナント漏洩を防ぐことをテストします
func TestStoreDoubleIsolation(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "clinic-a", []vectorindex.Record{
		testRecord("a-1", "clinic-a", "user-1", "a.pdf", 0, []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Upsert(ctx, "clinic-b", []vectorindex.Record{
		testRecord("b-1", "clinic-b", "user-9", "b.pdf", 0, []float32{1, 0, 0}),
	}))

	// 正規のクエリ経路では他テナントは決して返らない
	matches, err := store.Query(ctx, "clinic-a", []float32{1, 0, 0}, 10, vectorindex.Filter{
		TenantCode: "clinic-a",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].ID)

	// 検証1: namespace 述語だけでも clinic-a の行しか見えない
	var count int
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM tenant_vectors WHERE namespace = 'clinic-a' AND tenant_code <> 'clinic-a'`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "namespace 分離が破れている")

	// 検証2: tenant_code 述語だけでも clinic-a の行しか見えない
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM tenant_vectors WHERE tenant_code = 'clinic-a' AND namespace <> 'clinic-a'`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "メタデータ分離が破れている")
}

// TestStoreRejectsCrossTenantWrite は namespace と不一致のレコード書き込みが拒否されることをテストします
func TestStoreRejectsCrossTenantWrite(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	err := store.Upsert(ctx, "clinic-a", []vectorindex.Record{
		testRecord("b-1", "clinic-b", "user-9", "b.pdf", 0, []float32{1, 0, 0}),
	})
	assert.ErrorIs(t, err, vectorindex.ErrNamespaceFilterMismatch)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM tenant_vectors`).Scan(&count))
	assert.Equal(t, 0, count)
}

// TestStoreRejectsMismatchedQueryFilter はフィルタと namespace の不一致クエリが拒否されることをテストします
func TestStoreRejectsMismatchedQueryFilter(t *testing.T) {
	pool := requireTestPool(t)
	store := NewStore(pool)

	_, err := store.Query(context.Background(), "clinic-a", []float32{1, 0, 0}, 10, vectorindex.Filter{
		TenantCode: "clinic-b",
	})
	assert.ErrorIs(t, err, vectorindex.ErrNamespaceFilterMismatch)
}

// TestStoreQueryUploaderFilter はアップロードユーザーの絞り込みが AND 条件になることをテストします
func TestStoreQueryUploaderFilter(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "clinic-a", []vectorindex.Record{
		testRecord("a-1", "clinic-a", "user-1", "mine.pdf", 0, []float32{1, 0, 0}),
		testRecord("a-2", "clinic-a", "user-2", "theirs.pdf", 0, []float32{1, 0, 0}),
	}))

	uploader := "user-1"
	matches, err := store.Query(ctx, "clinic-a", []float32{1, 0, 0}, 10, vectorindex.Filter{
		TenantCode:   "clinic-a",
		UploaderCode: &uploader,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].ID)
}

// TestStoreDelete は明示された ID 集合だけが削除されることをテストします
func TestStoreDelete(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	store := NewStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "clinic-a", []vectorindex.Record{
		testRecord("a-1", "clinic-a", "user-1", "guide.pdf", 0, []float32{1, 0, 0}),
		testRecord("a-2", "clinic-a", "user-1", "guide.pdf", 1, []float32{0, 1, 0}),
	}))

	require.NoError(t, store.Delete(ctx, "clinic-a", []string{"a-1"}))

	matches, err := store.Query(ctx, "clinic-a", []float32{1, 0, 0}, 10, vectorindex.Filter{
		TenantCode: "clinic-a",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-2", matches[0].ID)
}

// TestSourceRepositoryRoundTrip はソース対応付けの CRUD をテストします
func TestSourceRepositoryRoundTrip(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	repo := NewSourceRepository(pool)
	ctx := context.Background()

	saved := saveTestSource(t, repo, "clinic-a", "user-1", "guide.pdf", 3)

	got, err := repo.GetSource(ctx, "clinic-a", "guide.pdf")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 3, got.ChunkCount)

	// 同一 (tenant_code, source_name) への再保存は更新になる
	saveTestSource(t, repo, "clinic-a", "user-1", "guide.pdf", 5)
	got, err = repo.GetSource(ctx, "clinic-a", "guide.pdf")
	require.NoError(t, err)
	assert.Equal(t, 5, got.ChunkCount)

	// uploader での絞り込み
	saveTestSource(t, repo, "clinic-a", "user-2", "other.pdf", 1)
	uploader := "user-1"
	items, err := repo.ListSources(ctx, "clinic-a", &uploader)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "guide.pdf", items[0].SourceName)

	require.NoError(t, repo.DeleteSource(ctx, "clinic-a", "guide.pdf"))
	_, err = repo.GetSource(ctx, "clinic-a", "guide.pdf")
	assert.Error(t, err)
}

// TestProtocolRepositoryRoundTrip はプロトコル記録の保存と取得をテストします
func TestProtocolRepositoryRoundTrip(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	repo := NewProtocolRepository(pool)
	ctx := context.Background()

	_, err := repo.GetProtocolRecord(ctx, "clinic-a", "user-1")
	assert.Error(t, err)

	require.NoError(t, repo.SaveProtocolRecord(ctx, "clinic-a", "user-1", "No peanuts."))

	record, err := repo.GetProtocolRecord(ctx, "clinic-a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "No peanuts.", record.Content)

	// upsert で内容が更新される
	require.NoError(t, repo.SaveProtocolRecord(ctx, "clinic-a", "user-1", "Soft foods only."))
	record, err = repo.GetProtocolRecord(ctx, "clinic-a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Soft foods only.", record.Content)
}

// TestWidgetRepositoryKeyLifecycle はウィジェットキーの発行・解決・再発行をテストします
func TestWidgetRepositoryKeyLifecycle(t *testing.T) {
	pool := requireTestPool(t)
	cleanTables(t, pool)
	repo := NewWidgetRepository(pool)
	ctx := context.Background()

	key, err := repo.GetOrIssueKey(ctx, "clinic-a")
	require.NoError(t, err)
	assert.Contains(t, key, "wk_")

	// 2回目は同じキーが返る
	again, err := repo.GetOrIssueKey(ctx, "clinic-a")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	tenant, err := repo.ResolveKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", tenant)

	// 再発行で旧キーは無効になる
	rotated, err := repo.RegenerateKey(ctx, "clinic-a")
	require.NoError(t, err)
	assert.NotEqual(t, key, rotated)

	_, err = repo.ResolveKey(ctx, key)
	assert.ErrorIs(t, err, ErrWidgetKeyNotFound)

	tenant, err = repo.ResolveKey(ctx, rotated)
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", tenant)
}

func saveTestSource(t *testing.T, repo *SourceRepository, tenant, uploader, name string, chunkCount int) *ingestion.SourceItem {
	t.Helper()

	item, err := repo.SaveSource(context.Background(), &ingestion.SourceItem{
		ID:           uuid.New(),
		TenantCode:   tenant,
		UploaderCode: uploader,
		SourceName:   name,
		SourceType:   vectorindex.SourceTypeDocument,
		ContentHash:  "hash-" + name,
		ChunkCount:   chunkCount,
	})
	require.NoError(t, err)
	return item
}
