package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubFetcher struct {
	records []Record
	err     error
}

func (f *stubFetcher) FetchBatch(ctx context.Context) ([]Record, error) {
	return f.records, f.err
}

func newTestOrchestrator(t *testing.T, fetcher Fetcher, vinDedup bool) (*Orchestrator, *catalog.Repo) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", url.QueryEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(catalog.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := catalog.NewRepo(db)
	resolver := catalog.NewResolver(repo, logger.Nop(), 1990, 2026)
	return NewOrchestrator(fetcher, repo, resolver, logger.Nop(), vinDedup), repo
}

func TestRunOnceCreatesGraph(t *testing.T) {
	fetcher := &stubFetcher{records: []Record{
		{ObjectID: "a1", Make: "Honda", Model: "Civic", Year: 2021},
		{ObjectID: "a2", Make: "Honda", Model: "Accord", Year: 2021},
		{ObjectID: "a3", Make: "Toyota", Model: "Corolla", Year: 2020},
	}}
	orch, repo := newTestOrchestrator(t, fetcher, false)

	report, err := orch.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Fetched != 3 || report.MakesCreated != 2 || report.ModelsCreated != 3 || report.CarsCreated != 3 {
		t.Fatalf("report = %+v", report)
	}
	if report.CarsSkipped != 0 || report.Incomplete != 0 {
		t.Fatalf("report = %+v", report)
	}

	cars, _ := repo.CountCars(context.Background())
	if cars != 3 {
		t.Fatalf("cars = %d, want 3", cars)
	}
	if orch.State() != StateIdle {
		t.Fatalf("state = %s, want idle", orch.State())
	}
}

func TestRunOnceIsIdempotentForGraphNodes(t *testing.T) {
	fetcher := &stubFetcher{records: []Record{
		{ObjectID: "a1", Make: "Honda", Model: "Civic", Year: 2021},
	}}
	orch, repo := newTestOrchestrator(t, fetcher, true)
	ctx := context.Background()

	if _, err := orch.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := orch.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	// 第二轮：节点已存在，VIN 去重拦住重复入库
	if second.MakesCreated != 0 || second.ModelsCreated != 0 || second.CarsCreated != 0 {
		t.Fatalf("second report = %+v", second)
	}
	if second.CarsSkipped != 1 {
		t.Fatalf("second report = %+v, want 1 skipped", second)
	}

	models, _ := repo.CountCarModels(ctx)
	cars, _ := repo.CountCars(ctx)
	if models != 1 || cars != 1 {
		t.Fatalf("models=%d cars=%d, want 1/1", models, cars)
	}
}

func TestRunOnceWithoutDedupAppends(t *testing.T) {
	fetcher := &stubFetcher{records: []Record{
		{ObjectID: "a1", Make: "Honda", Model: "Civic", Year: 2021},
	}}
	orch, repo := newTestOrchestrator(t, fetcher, false)
	ctx := context.Background()

	if _, err := orch.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// VIN 唯一索引仍然兜底：同一 objectId 第二次追加被拦下
	second, err := orch.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CarsCreated != 0 || second.CarsSkipped != 1 {
		t.Fatalf("second report = %+v", second)
	}
	cars, _ := repo.CountCars(ctx)
	if cars != 1 {
		t.Fatalf("cars = %d", cars)
	}
}

func TestRunOnceSkipsIncompleteRecords(t *testing.T) {
	fetcher := &stubFetcher{records: []Record{
		{ObjectID: "a1", Make: "Honda", Model: "Civic", Year: 2021},
		{ObjectID: "a2", Make: "", Model: "Mystery", Year: 2021},
		{ObjectID: "a3", Make: "Honda", Model: "NoYear", Year: 0},
		{ObjectID: "", Make: "Honda", Model: "NoID", Year: 2021},
	}}
	orch, repo := newTestOrchestrator(t, fetcher, false)

	report, err := orch.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Fetched != 4 || report.Incomplete != 3 || report.CarsCreated != 1 {
		t.Fatalf("report = %+v", report)
	}
	cars, _ := repo.CountCars(context.Background())
	if cars != 1 {
		t.Fatalf("cars = %d, want 1", cars)
	}
}

func TestRunOnceBadRecordDoesNotAbortBatch(t *testing.T) {
	fetcher := &stubFetcher{records: []Record{
		{ObjectID: "a1", Make: "Honda", Model: "Civic", Year: 1700}, // 年份出界，解析失败
		{ObjectID: "a2", Make: "Toyota", Model: "Corolla", Year: 2020},
	}}
	orch, repo := newTestOrchestrator(t, fetcher, false)

	report, err := orch.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.CarsSkipped != 1 || report.CarsCreated != 1 {
		t.Fatalf("report = %+v", report)
	}
	// 失败记录不得留下半个链条
	models, _ := repo.CountCarModels(context.Background())
	if models != 1 {
		t.Fatalf("models = %d, want 1", models)
	}
}

func TestRunOnceFetchFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("boom")}
	orch, repo := newTestOrchestrator(t, fetcher, false)

	if _, err := orch.RunOnce(context.Background()); err == nil {
		t.Fatal("want error")
	}
	cars, _ := repo.CountCars(context.Background())
	if cars != 0 {
		t.Fatalf("cars = %d, fetch failure must not write", cars)
	}
	if orch.State() != StateIdle {
		t.Fatalf("state = %s, want idle after failure", orch.State())
	}
}

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateFetching, true},
		{StateFetching, StateProcessing, true},
		{StateFetching, StateIdle, true},
		{StateProcessing, StateIdle, true},
		{StateIdle, StateProcessing, false},
		{StateProcessing, StateFetching, false},
		{StateIdle, StateIdle, false},
	}
	for _, c := range cases {
		if got := canTransition(c.from, c.to); got != c.ok {
			t.Fatalf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestFeedClientFetchBatch(t *testing.T) {
	var gotAppID, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAppID = r.Header.Get("X-Parse-Application-Id")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"objectId":"x1","Make":"Honda","Model":"Civic","Year":2021,"Category":"Sedan"}]}`))
	}))
	defer srv.Close()

	c := NewFeedClient(config.FeedConfig{URL: srv.URL, AppID: "app-1", BatchLimit: 50})
	records, err := c.FetchBatch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0].ObjectID != "x1" || records[0].Year != 2021 {
		t.Fatalf("records = %+v", records)
	}
	if gotAppID != "app-1" {
		t.Fatalf("app id header = %q", gotAppID)
	}
	if gotLimit != "50" {
		t.Fatalf("limit = %q", gotLimit)
	}
}

func TestFeedClientNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewFeedClient(config.FeedConfig{URL: srv.URL})
	if _, err := c.FetchBatch(context.Background()); err == nil {
		t.Fatal("want error on 502")
	}
}
