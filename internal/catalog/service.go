package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/carbase/carbase/internal/common/logger"
	"github.com/carbase/carbase/internal/common/pagination"
	"gorm.io/gorm"
)

// RetryPolicy 写边界的有限重试：只对瞬时存储错误（锁等待超时）重试，
// 次数与退避是显式参数而不是隐式装饰器。
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Do 执行 fn，遇到 ErrTransient 按策略重试，重试耗尽后原样返回。
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(i+1)):
		}
	}
	return err
}

// Service 目录领域用例（不依赖传输层）。
// 每个请求各自持有事务；跨事务的重复 Make/CarModel 由唯一约束兜底。
type Service struct {
	repo     *Repo
	resolver *Resolver
	log      logger.Logger
	retry    RetryPolicy

	defaultPageSize int
	maxPageSize     int
}

type ServiceOptions struct {
	MinYear         int
	MaxYear         int
	DefaultPageSize int
	MaxPageSize     int
	Retry           RetryPolicy
}

func NewService(repo *Repo, log logger.Logger, opts ServiceOptions) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &Service{
		repo:            repo,
		resolver:        NewResolver(repo, log, opts.MinYear, opts.MaxYear),
		log:             log,
		retry:           opts.Retry,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}
}

// Resolver 暴露给同步任务复用同一套 find-or-create 语义。
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

func (s *Service) Repo() *Repo {
	return s.repo
}

// CreateCarInput 创建入参。二选一：
// 给 CarModelID 时直接挂到已有车型下，否则按 (Make, Model, Year) 解析。
type CreateCarInput struct {
	CarModelID uint
	Make       string
	Model      string
	Year       int
	VIN        string
}

// UpdateCarInput 部分更新入参，nil 字段表示不改。
type UpdateCarInput struct {
	Make  *string
	Model *string
	Year  *int
}

// ListCarsInput 列表查询入参。
type ListCarsInput struct {
	Limit  int
	Cursor uint64
	Fields []string

	// 可选过滤
	Make  string
	Model string
	Year  int
}

// CarPage 一页扁平化结果。
type CarPage struct {
	Items      []CarView
	NextCursor *uint64
	Limit      int
}

// CreateCar 解析（必要时创建）(make, model, year) 对应的 CarModel 并在其下
// 新建一辆车。已存在完全相同三元组的车时返回冲突，与历史 API 行为一致。
func (s *Service) CreateCar(ctx context.Context, in CreateCarInput) (*CarView, error) {
	if in.CarModelID == 0 {
		if err := ValidateName("make", in.Make); err != nil {
			return nil, err
		}
		if err := ValidateName("model", in.Model); err != nil {
			return nil, err
		}
		if err := s.resolver.ValidateYear(in.Year); err != nil {
			return nil, err
		}
	}

	var carID uint
	err := s.retry.Do(ctx, func() error {
		return s.repo.Transaction(ctx, func(tx *Repo) error {
			txResolver := s.resolver.WithRepo(tx)

			makeName, modelName, year := in.Make, in.Model, in.Year
			if in.CarModelID != 0 {
				cm, err := tx.FindCarModelByID(ctx, in.CarModelID)
				if err != nil {
					return err
				}
				makeName, modelName, year = cm.Make.Name, cm.Name, cm.Year
			}

			if _, err := tx.FindCarByTriple(ctx, makeName, modelName, year, 0); err == nil {
				return conflictf("car %q %q (%d) already exists", makeName, modelName, year)
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}

			cm, err := txResolver.ResolveCarModel(ctx, makeName, modelName, year, nil)
			if err != nil {
				return err
			}
			car, err := txResolver.AppendCar(ctx, cm.ID, in.VIN)
			if err != nil {
				return err
			}
			carID = car.ID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetCar(ctx, carID, nil)
}

// GetCar 按 id 读取扁平化视图，fields 控制投影。
func (s *Service) GetCar(ctx context.Context, id uint, fields []string) (*CarView, error) {
	p := BuildProjection(fields)
	q := s.repo.CarQuery(ctx).Where("cars.id = ?", id)
	q = applyProjection(q, p)

	var views []CarView
	if err := q.Limit(1).Scan(&views).Error; err != nil {
		return nil, translateStoreError(err)
	}
	if len(views) == 0 {
		return nil, ErrNotFound
	}
	return &views[0], nil
}

// ListCars 游标分页 + 字段投影 + 可选过滤。
// limit 缺省取配置默认值并压到上限；无界查询不提供。
// 单字段 DISTINCT 投影没有 cars.id 可作游标，这种页不带 next_cursor。
func (s *Service) ListCars(ctx context.Context, in ListCarsInput) (*CarPage, error) {
	limit := in.Limit
	if limit == 0 {
		limit = s.defaultPageSize
	}
	if limit < 0 {
		return nil, invalidf("limit must be positive, got %d", limit)
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	q := s.repo.CarQuery(ctx)
	if m := strings.TrimSpace(in.Make); m != "" {
		q = q.Where("makes.name = ?", m)
	}
	if m := strings.TrimSpace(in.Model); m != "" {
		q = q.Where("car_models.name = ?", m)
	}
	if in.Year != 0 {
		q = q.Where("car_models.year = ?", in.Year)
	}

	p := BuildProjection(in.Fields)
	q = applyProjection(q, p)

	if !p.HasCarID {
		// DISTINCT 单列投影：有界取回，不翻页
		var items []CarView
		if err := q.Limit(limit).Scan(&items).Error; err != nil {
			return nil, translateStoreError(err)
		}
		return &CarPage{Items: items, Limit: limit}, nil
	}

	page, err := pagination.Paginate[CarView](q, "cars.id", limit, in.Cursor, func(v CarView) uint64 {
		if v.ID == nil {
			return 0
		}
		return *v.ID
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidLimit) {
			return nil, invalidf("%v", err)
		}
		return nil, translateStoreError(err)
	}
	return &CarPage{Items: page.Items, NextCursor: page.NextCursor, Limit: page.Limit}, nil
}

// UpdateCar 更新协议（patch / put 共用）：
// 先在事务里解析目标 CarModel（find-or-create），再把 car 改挂到它下面。
// 关系删除与新关系建立在同一个事务里，不存在车暂时无车型的可观测状态。
func (s *Service) UpdateCar(ctx context.Context, id uint, in UpdateCarInput, replace bool) (*CarView, error) {
	if replace {
		if in.Make == nil || in.Model == nil || in.Year == nil {
			return nil, invalidf("make, model and year are required for replace")
		}
	} else if in.Make == nil && in.Model == nil && in.Year == nil {
		return nil, invalidf("provide at least one field")
	}

	if in.Make != nil {
		if err := ValidateName("make", *in.Make); err != nil {
			return nil, err
		}
	}
	if in.Model != nil {
		if err := ValidateName("model", *in.Model); err != nil {
			return nil, err
		}
	}
	if in.Year != nil {
		if err := s.resolver.ValidateYear(*in.Year); err != nil {
			return nil, err
		}
	}

	err := s.retry.Do(ctx, func() error {
		return s.repo.Transaction(ctx, func(tx *Repo) error {
			car, err := tx.FindCarByID(ctx, id)
			if err != nil {
				return err
			}

			// 目标三元组 = 现状 + 请求覆盖
			targetMake := car.CarModel.Make.Name
			targetModel := car.CarModel.Name
			targetYear := car.CarModel.Year
			if in.Make != nil {
				targetMake = strings.TrimSpace(*in.Make)
			}
			if in.Model != nil {
				targetModel = strings.TrimSpace(*in.Model)
			}
			if in.Year != nil {
				targetYear = *in.Year
			}

			if _, err := tx.FindCarByTriple(ctx, targetMake, targetModel, targetYear, car.ID); err == nil {
				return conflictf("car %q %q (%d) already exists", targetMake, targetModel, targetYear)
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}

			cm, err := s.resolver.WithRepo(tx).ResolveCarModel(ctx, targetMake, targetModel, targetYear, nil)
			if err != nil {
				return err
			}
			if cm.ID == car.CarModelID {
				return nil
			}
			return tx.ReassignCar(ctx, car.ID, cm.ID)
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetCar(ctx, id, nil)
}

// DeleteCar 叶子删除。
func (s *Service) DeleteCar(ctx context.Context, id uint) error {
	return s.retry.Do(ctx, func() error {
		return s.repo.DeleteCar(ctx, id)
	})
}

// DeleteMake 级联删除整个品牌子树。
func (s *Service) DeleteMake(ctx context.Context, id uint) error {
	return s.retry.Do(ctx, func() error {
		return s.repo.DeleteMake(ctx, id)
	})
}

func applyProjection(q *gorm.DB, p Projection) *gorm.DB {
	if p.Distinct {
		cols := make([]interface{}, 0, len(p.Columns))
		for _, c := range p.Columns {
			cols = append(cols, c)
		}
		return q.Distinct(cols...)
	}
	return q.Select(strings.Join(p.Columns, ", "))
}
