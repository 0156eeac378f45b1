package catalog

import (
	"fmt"
	"time"
)

// Make 是 makes 表的 GORM 模型。name 全局唯一。
type Make struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:100;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	// 删除 Make 时级联删除其下所有 CarModel。
	CarModels []CarModel `gorm:"constraint:OnDelete:CASCADE"`
}

// CarModel 是 car_models 表的 GORM 模型。
// (name, year, make_id) 三元组唯一，由数据库唯一索引兜底。
type CarModel struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;not null;index;uniqueIndex:uq_model_year_make"`
	Year      int       `gorm:"not null;index;uniqueIndex:uq_model_year_make"`
	MakeID    uint      `gorm:"not null;index;uniqueIndex:uq_model_year_make"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Make Make  `gorm:"foreignKey:MakeID"`
	Cars []Car `gorm:"constraint:OnDelete:CASCADE"`
}

// Car 是 cars 表的一条库存记录。make/model/year 不落在本表，
// 始终经由 CarModel -> Make 读取。
type Car struct {
	ID         uint      `gorm:"primaryKey"`
	CarModelID uint      `gorm:"not null;index"`
	VIN        *string   `gorm:"size:64;uniqueIndex"` // 外部标识，存在时唯一
	CreatedAt  time.Time `gorm:"autoCreateTime"`

	CarModel CarModel `gorm:"foreignKey:CarModelID"`
}

// FullName 由当前父节点状态实时计算，绝不缓存；
// Make 改名后，下一次读取即生效。
func (c Car) FullName() string {
	if c.CarModel.ID == 0 || c.CarModel.Make.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%s %s (%d)", c.CarModel.Make.Name, c.CarModel.Name, c.CarModel.Year)
}

// FullName 同上，CarModel 级别的展示名。
func (m CarModel) FullName() string {
	if m.Make.ID == 0 {
		return fmt.Sprintf("%s (%d)", m.Name, m.Year)
	}
	return fmt.Sprintf("%s %s (%d)", m.Make.Name, m.Name, m.Year)
}

// Models 返回需要 AutoMigrate 的全部模型（按依赖顺序）。
func Models() []any {
	return []any{&Make{}, &CarModel{}, &Car{}}
}
