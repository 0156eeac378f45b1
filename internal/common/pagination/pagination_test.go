package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type row struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string
}

func openTestDB(t *testing.T, n int) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.QueryEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 1; i <= n; i++ {
		if err := db.Create(&row{Name: fmt.Sprintf("row-%03d", i)}).Error; err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	return db
}

func TestPaginateWalksAllRows(t *testing.T) {
	const total = 25
	db := openTestDB(t, total)

	var cursor uint64
	seen := make(map[uint64]bool)
	var lastID uint64
	for {
		page, err := Paginate[row](db.Model(&row{}), "id", 10, cursor, func(r row) uint64 { return r.ID })
		if err != nil {
			t.Fatalf("paginate: %v", err)
		}
		if len(page.Items) == 0 {
			if page.NextCursor != nil {
				t.Fatal("empty page must not carry a cursor")
			}
			break
		}
		for _, r := range page.Items {
			if r.ID <= lastID {
				t.Fatalf("order violated: %d after %d", r.ID, lastID)
			}
			lastID = r.ID
			if seen[r.ID] {
				t.Fatalf("duplicate row %d", r.ID)
			}
			seen[r.ID] = true
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	if len(seen) != total {
		t.Fatalf("walked %d rows, want %d", len(seen), total)
	}
}

func TestPaginateCursorIsExclusive(t *testing.T) {
	db := openTestDB(t, 5)

	first, err := Paginate[row](db.Model(&row{}), "id", 2, 0, func(r row) uint64 { return r.ID })
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == nil {
		t.Fatalf("first page = %+v", first)
	}

	second, err := Paginate[row](db.Model(&row{}), "id", 2, *first.NextCursor, func(r row) uint64 { return r.ID })
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if second.Items[0].ID != first.Items[1].ID+1 {
		t.Fatalf("cursor not exclusive: second starts at %d", second.Items[0].ID)
	}
}

func TestPaginateSkipsDeletedRows(t *testing.T) {
	db := openTestDB(t, 6)

	first, err := Paginate[row](db.Model(&row{}), "id", 3, 0, func(r row) uint64 { return r.ID })
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	// 翻页间删掉下一页的头一行
	if err := db.Delete(&row{}, 4).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	second, err := Paginate[row](db.Model(&row{}), "id", 3, *first.NextCursor, func(r row) uint64 { return r.ID })
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 2 {
		t.Fatalf("items = %d, want 2 after deletion", len(second.Items))
	}
	if second.Items[0].ID != 5 {
		t.Fatalf("second page starts at %d, want 5", second.Items[0].ID)
	}
}

func TestPaginateRejectsBadLimit(t *testing.T) {
	db := openTestDB(t, 1)
	for _, limit := range []int{0, -1} {
		_, err := Paginate[row](db.Model(&row{}), "id", limit, 0, func(r row) uint64 { return r.ID })
		if !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit %d: err = %v, want ErrInvalidLimit", limit, err)
		}
	}
}
