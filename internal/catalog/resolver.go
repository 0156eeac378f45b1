package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/carbase/carbase/internal/common/logger"
)

// Resolver 实现 find-or-create 语义：命中即返回已有节点，绝不隐式改写；
// 未命中则创建。find-then-create 对并发不是原子的，真正的兜底是
// 数据库唯一约束——创建撞到唯一冲突说明别人赢了竞态，重查一次即可。
type Resolver struct {
	repo *Repo
	log  logger.Logger

	minYear int
	maxYear int
}

// ResolveStats 记录一次解析过程中新建了哪些节点（同步任务聚合计数用）。
type ResolveStats struct {
	MakeCreated  bool
	ModelCreated bool
}

func NewResolver(repo *Repo, log logger.Logger, minYear, maxYear int) *Resolver {
	if minYear <= 0 {
		minYear = 1990
	}
	if maxYear <= 0 {
		maxYear = 2026
	}
	return &Resolver{repo: repo, log: log, minYear: minYear, maxYear: maxYear}
}

// WithRepo 返回绑定到事务 Repo 的 Resolver 副本。
func (rs *Resolver) WithRepo(repo *Repo) *Resolver {
	cp := *rs
	cp.repo = repo
	return &cp
}

// ValidateYear 年份范围校验（存储前拦截）。
func (rs *Resolver) ValidateYear(year int) error {
	if year < rs.minYear || year > rs.maxYear {
		return invalidf("year %d out of range [%d, %d]", year, rs.minYear, rs.maxYear)
	}
	return nil
}

// ValidateName 品牌/车型名称校验：3-100 字符。
func ValidateName(field, name string) error {
	n := len(strings.TrimSpace(name))
	if n < 3 || n > 100 {
		return invalidf("%s must be 3-100 chars", field)
	}
	return nil
}

// ResolveMake 按名称精确查找 Make，缺失则创建。
func (rs *Resolver) ResolveMake(ctx context.Context, name string, stats *ResolveStats) (*Make, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName("make", name); err != nil {
		return nil, err
	}

	m, err := rs.repo.FindMakeByName(ctx, name)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &Make{Name: name}
	if err := rs.repo.CreateMake(ctx, created); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// 并发创建输了竞态，重查一次
			return rs.repo.FindMakeByName(ctx, name)
		}
		return nil, err
	}
	if stats != nil {
		stats.MakeCreated = true
	}
	return created, nil
}

// ResolveCarModel 解析 (make, model, year) 对应的 CarModel 节点，
// 缺失则连同 Make 一起创建。命中时原样返回，不做任何字段改写。
func (rs *Resolver) ResolveCarModel(ctx context.Context, makeName, modelName string, year int, stats *ResolveStats) (*CarModel, error) {
	modelName = strings.TrimSpace(modelName)
	if err := ValidateName("model", modelName); err != nil {
		return nil, err
	}
	if err := rs.ValidateYear(year); err != nil {
		return nil, err
	}

	mk, err := rs.ResolveMake(ctx, makeName, stats)
	if err != nil {
		return nil, err
	}

	cm, err := rs.repo.FindCarModelByKey(ctx, modelName, year, mk.ID)
	if err == nil {
		cm.Make = *mk
		return cm, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &CarModel{Name: modelName, Year: year, MakeID: mk.ID}
	if err := rs.repo.CreateCarModel(ctx, created); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			cm, ferr := rs.repo.FindCarModelByKey(ctx, modelName, year, mk.ID)
			if ferr != nil {
				return nil, ferr
			}
			cm.Make = *mk
			return cm, nil
		}
		return nil, err
	}
	if stats != nil {
		stats.ModelCreated = true
	}
	created.Make = *mk
	return created, nil
}

// AppendCar 在已解析的 CarModel 下追加一辆车。追加永远是新增一行，
// 不按内容去重；仅当携带 VIN 时由唯一索引拦截重复 VIN。
func (rs *Resolver) AppendCar(ctx context.Context, carModelID uint, vin string) (*Car, error) {
	c := &Car{CarModelID: carModelID}
	if v := strings.TrimSpace(vin); v != "" {
		c.VIN = &v
	}
	if err := rs.repo.CreateCar(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
