package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/carbase/carbase/internal/common/logger"
)

func newTestResolver(t *testing.T) (*Resolver, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	return NewResolver(repo, logger.Nop(), 1990, 2026), repo
}

func TestResolveMakeFindOrCreate(t *testing.T) {
	rs, _ := newTestResolver(t)
	ctx := context.Background()

	var stats ResolveStats
	m1, err := rs.ResolveMake(ctx, "Honda", &stats)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if !stats.MakeCreated {
		t.Fatal("first resolve should create the make")
	}

	stats = ResolveStats{}
	m2, err := rs.ResolveMake(ctx, "Honda", &stats)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if stats.MakeCreated {
		t.Fatal("second resolve must not create")
	}
	if m1.ID != m2.ID {
		t.Fatalf("resolve not idempotent: %d vs %d", m1.ID, m2.ID)
	}
}

func TestResolveMakeRejectsBadName(t *testing.T) {
	rs, _ := newTestResolver(t)
	for _, name := range []string{"", "ab", "  a  "} {
		if _, err := rs.ResolveMake(context.Background(), name, nil); !errors.Is(err, ErrInvalid) {
			t.Fatalf("name %q: err = %v, want ErrInvalid", name, err)
		}
	}
}

func TestResolveCarModelCreatesChain(t *testing.T) {
	rs, repo := newTestResolver(t)
	ctx := context.Background()

	var stats ResolveStats
	cm, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2021, &stats)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !stats.MakeCreated || !stats.ModelCreated {
		t.Fatalf("stats = %+v, want both created", stats)
	}
	if cm.Make.Name != "Honda" {
		t.Fatalf("make not attached: %+v", cm.Make)
	}
	if got := cm.FullName(); got != "Honda Civic (2021)" {
		t.Fatalf("full name = %q", got)
	}

	// 命中路径：不新建，返回同一节点
	stats = ResolveStats{}
	again, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2021, &stats)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if stats.MakeCreated || stats.ModelCreated {
		t.Fatalf("stats = %+v, want nothing created", stats)
	}
	if again.ID != cm.ID {
		t.Fatalf("ids differ: %d vs %d", again.ID, cm.ID)
	}

	n, err := repo.CountCarModels(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("car models = %d, want 1", n)
	}
}

func TestResolveCarModelSameNameDifferentYear(t *testing.T) {
	rs, _ := newTestResolver(t)
	ctx := context.Background()

	a, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2020, nil)
	if err != nil {
		t.Fatalf("2020: %v", err)
	}
	b, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2021, nil)
	if err != nil {
		t.Fatalf("2021: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("different years must be distinct nodes")
	}
}

func TestResolveCarModelYearOutOfRange(t *testing.T) {
	rs, _ := newTestResolver(t)
	for _, year := range []int{0, 1889, 2100} {
		_, err := rs.ResolveCarModel(context.Background(), "Honda", "Civic", year, nil)
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("year %d: err = %v, want ErrInvalid", year, err)
		}
	}
}

func TestAppendCarNoDedup(t *testing.T) {
	rs, repo := newTestResolver(t)
	ctx := context.Background()

	cm, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2021, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := rs.AppendCar(ctx, cm.ID, ""); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := rs.AppendCar(ctx, cm.ID, ""); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	n, _ := repo.CountCars(ctx)
	if n != 2 {
		t.Fatalf("cars = %d, want 2 (append does not dedup)", n)
	}
}

func TestAppendCarVINUnique(t *testing.T) {
	rs, _ := newTestResolver(t)
	ctx := context.Background()

	cm, err := rs.ResolveCarModel(ctx, "Honda", "Civic", 2021, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := rs.AppendCar(ctx, cm.ID, "VIN-123"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := rs.AppendCar(ctx, cm.ID, "VIN-123"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate vin: err = %v, want ErrAlreadyExists", err)
	}
}
