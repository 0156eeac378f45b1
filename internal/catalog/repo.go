package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repo 封装实体图（Make -> CarModel -> Car）的存储访问。
// 唯一性与引用完整性由数据库约束兜底，本层只做错误翻译。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// Transaction 在单个数据库事务内执行 fn，fn 内部通过事务版 Repo 访问存储。
func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepo(tx))
	})
}

func (r *Repo) CreateMake(ctx context.Context, m *Make) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return translateStoreError(db.Create(m).Error)
}

func (r *Repo) FindMakeByName(ctx context.Context, name string) (*Make, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m Make
	if err := db.Where("name = ?", name).First(&m).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &m, nil
}

func (r *Repo) FindMakeByID(ctx context.Context, id uint) (*Make, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m Make
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &m, nil
}

// RenameMake 只改 name 字段；依赖它的 full_name 在下一次读取时自然生效。
func (r *Repo) RenameMake(ctx context.Context, id uint, name string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Make{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return translateStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMake 删除 Make，级联删除其下 CarModel 与 Car（数据库外键 CASCADE）。
func (r *Repo) DeleteMake(ctx context.Context, id uint) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Delete(&Make{}, id)
	if res.Error != nil {
		return translateStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CreateCarModel(ctx context.Context, m *CarModel) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return translateStoreError(db.Create(m).Error)
}

func (r *Repo) FindCarModelByKey(ctx context.Context, name string, year int, makeID uint) (*CarModel, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m CarModel
	err := db.Where("name = ? AND year = ? AND make_id = ?", name, year, makeID).First(&m).Error
	if err != nil {
		return nil, translateStoreError(err)
	}
	return &m, nil
}

func (r *Repo) FindCarModelByID(ctx context.Context, id uint) (*CarModel, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m CarModel
	if err := db.Preload("Make").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &m, nil
}

func (r *Repo) DeleteCarModel(ctx context.Context, id uint) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Delete(&CarModel{}, id)
	if res.Error != nil {
		return translateStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CreateCar(ctx context.Context, c *Car) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return translateStoreError(db.Create(c).Error)
}

// FindCarByID 连同 CarModel -> Make 链一起加载（full_name 需要）。
func (r *Repo) FindCarByID(ctx context.Context, id uint) (*Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Car
	err := db.Preload("CarModel.Make").Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, translateStoreError(err)
	}
	return &c, nil
}

func (r *Repo) FindCarByVIN(ctx context.Context, vin string) (*Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Car
	if err := db.Where("vin = ?", vin).First(&c).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &c, nil
}

// FindCarByTriple 按 (make, model, year) 查找一辆车，可排除指定 id（更新时自查重用）。
func (r *Repo) FindCarByTriple(ctx context.Context, makeName, modelName string, year int, excludeID uint) (*Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Car{}).Select("cars.*").
		Joins("JOIN car_models ON car_models.id = cars.car_model_id").
		Joins("JOIN makes ON makes.id = car_models.make_id").
		Where("makes.name = ? AND car_models.name = ? AND car_models.year = ?", makeName, modelName, year)
	if excludeID != 0 {
		q = q.Where("cars.id <> ?", excludeID)
	}
	var c Car
	if err := q.First(&c).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &c, nil
}

// ReassignCar 把 car 挂到新的 CarModel 下。调用方负责把它放进
// 包含目标 CarModel 解析的同一个事务里，避免出现无主 Car 的可观测中间态。
func (r *Repo) ReassignCar(ctx context.Context, carID, carModelID uint) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Car{}).Where("id = ?", carID).Update("car_model_id", carModelID)
	if res.Error != nil {
		return translateStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteCar(ctx context.Context, id uint) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Delete(&Car{}, id)
	if res.Error != nil {
		return translateStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCarModels / CountCars 供同步任务与测试观测使用。
func (r *Repo) CountCarModels(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	if err := db.Model(&CarModel{}).Count(&n).Error; err != nil {
		return 0, translateStoreError(err)
	}
	return n, nil
}

func (r *Repo) CountCars(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	if err := db.Model(&Car{}).Count(&n).Error; err != nil {
		return 0, translateStoreError(err)
	}
	return n, nil
}

// CarQuery 返回 cars ⋈ car_models ⋈ makes 的基础查询，
// 供投影与游标分页在其上继续收窄。
func (r *Repo) CarQuery(ctx context.Context) *gorm.DB {
	db := r.withCtx(ctx)
	if db == nil {
		return nil
	}
	return db.Model(&Car{}).
		Joins("JOIN car_models ON car_models.id = cars.car_model_id").
		Joins("JOIN makes ON makes.id = car_models.make_id")
}
