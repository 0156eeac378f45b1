package pagination

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// 游标分页：永远按单一单调 id 字段升序，不按业务字段排序，
// 这样游标值对并发插入是稳定的。游标是排他的（id > cursor）：
// 翻页间被删除的行直接跳过，id 小于游标的新行不会重复出现。

// ErrInvalidLimit limit 必须为正整数；上限由调用侧（HTTP 层）约束。
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Page 一页结果。NextCursor 为空表示已到流末尾。
type Page[T any] struct {
	Items      []T
	NextCursor *uint64
	Limit      int
}

// Paginate 在有序查询 q 上取一页。
// cursorOf 从条目里取出 idField 的值，用作下一页游标；
// 返回条目数少于 limit 或 NextCursor 为空时，调用方可判定流结束。
func Paginate[T any](q *gorm.DB, idField string, limit int, cursor uint64, cursorOf func(T) uint64) (Page[T], error) {
	if limit <= 0 {
		return Page[T]{}, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if q == nil {
		return Page[T]{}, fmt.Errorf("query is nil")
	}

	if cursor > 0 {
		q = q.Where(fmt.Sprintf("%s > ?", idField), cursor)
	}
	q = q.Order(fmt.Sprintf("%s ASC", idField)).Limit(limit)

	var items []T
	if err := q.Scan(&items).Error; err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Items: items, Limit: limit}
	if len(items) > 0 && cursorOf != nil {
		last := cursorOf(items[len(items)-1])
		page.NextCursor = &last
	}
	return page, nil
}
