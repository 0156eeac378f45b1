package catalog

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 错误分层约定：
// - ErrInvalid       入参校验失败，尚未触达存储（HTTP 400）
// - ErrNotFound      引用的记录不存在（HTTP 404）
// - ErrAlreadyExists 唯一约束冲突，携带冲突键（HTTP 409）
// - ErrTransient     存储瞬时错误（锁等待超时等），写边界有限重试后仍失败则 500
// 存储层原始错误只在本包内翻译，不向 handler 泄漏。
var (
	ErrInvalid       = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrTransient     = errors.New("transient storage error")
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
)

// translateStoreError 把 gorm / mysql 驱动错误翻译为本包的错误分类。
func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, me.Message)
		case mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %s", ErrTransient, me.Message)
		}
	}
	return err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAlreadyExists}, args...)...)
}
