package catalog

// 字段投影：把请求的字段集合翻译成 cars ⋈ car_models ⋈ makes 连接上的
// 最小 SELECT 列表。支持的字段集合是封闭的，未知字段静默丢弃而不是报错。

var fieldAliases = map[string]string{
	"make_name":  "make",
	"model_name": "model",
}

var supportedFields = map[string]struct{}{
	"car":   {},
	"make":  {},
	"model": {},
	"year":  {},
}

const (
	colCarID     = "cars.id AS id"
	colYear      = "car_models.year AS year"
	colModelName = "car_models.name AS model"
	colMakeName  = "makes.name AS make"
)

// Projection 一次读查询的投影结果。
type Projection struct {
	Columns  []string
	Distinct bool
	// HasCarID 表示选择了 cars.id，游标分页只有在这种投影下才有意义。
	HasCarID bool
}

// BuildProjection 规则：
//   - 过滤掉未知字段后为空（或根本没传字段）-> 默认全量投影
//     （car 对象含内嵌 year + make/model 名称）
//   - 同时出现 car 与 year 时省略 year，car 已内嵌
//   - 规整后只剩一列 -> DISTINCT，压平到单列会让原本不同的父实体产生重复行
func BuildProjection(fields []string) Projection {
	normalized := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if alias, ok := fieldAliases[f]; ok {
			f = alias
		}
		if _, ok := supportedFields[f]; !ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		normalized = append(normalized, f)
	}

	if len(normalized) == 0 {
		return defaultProjection()
	}

	p := Projection{}
	hasCar := false
	for _, f := range normalized {
		if f == "car" {
			hasCar = true
		}
	}
	for _, f := range normalized {
		switch f {
		case "car":
			p.Columns = append(p.Columns, colCarID, colYear)
			p.HasCarID = true
		case "model":
			p.Columns = append(p.Columns, colModelName)
		case "make":
			p.Columns = append(p.Columns, colMakeName)
		case "year":
			if !hasCar {
				p.Columns = append(p.Columns, colYear)
			}
		}
	}
	if len(p.Columns) == 0 {
		return defaultProjection()
	}
	if len(p.Columns) == 1 {
		p.Distinct = true
	}
	return p
}

func defaultProjection() Projection {
	return Projection{
		Columns:  []string{colCarID, colYear, colMakeName, colModelName},
		HasCarID: true,
	}
}

// CarView 扁平化的读视图。未投影的列保持 nil，JSON 序列化时省略；
// 视图永远是连接查询的派生结果，不落库。
type CarView struct {
	ID    *uint64 `json:"id,omitempty" gorm:"column:id"`
	Year  *int    `json:"year,omitempty" gorm:"column:year"`
	Make  *string `json:"make,omitempty" gorm:"column:make"`
	Model *string `json:"model,omitempty" gorm:"column:model"`
}
