package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/logger"
)

// State 同步任务状态枚举。
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
)

// allowTransition 状态流转关系：idle -> fetching -> processing -> idle，
// 拉取失败时 fetching 直接回 idle。
var allowTransition = map[State][]State{
	StateIdle:       {StateFetching},
	StateFetching:   {StateProcessing, StateIdle},
	StateProcessing: {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range allowTransition[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrRunInProgress 已有一轮同步在跑，本次触发被拒绝。
var ErrRunInProgress = errors.New("sync run already in progress")

// Report 一轮同步的聚合计数。
type Report struct {
	Fetched       int       `json:"fetched"`
	MakesCreated  int       `json:"makes_created"`
	ModelsCreated int       `json:"models_created"`
	CarsCreated   int       `json:"cars_created"`
	CarsSkipped   int       `json:"cars_skipped"` // VIN 已存在 / 解析失败
	Incomplete    int       `json:"incomplete"`   // 缺必填字段，不计为错误
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Orchestrator 周期性把外部数据源的车型记录对账进目录。
// 对 Make/CarModel 幂等（find-or-create + 唯一约束兜底）；
// Car 默认每条记录都是一个新库存实例，开启 VIN 去重后按 VIN 跳过重复。
type Orchestrator struct {
	fetcher  Fetcher
	repo     *catalog.Repo
	resolver *catalog.Resolver
	log      logger.Logger
	vinDedup bool

	mu      sync.Mutex
	state   State
	trigger chan struct{}
}

func NewOrchestrator(fetcher Fetcher, repo *catalog.Repo, resolver *catalog.Resolver, log logger.Logger, vinDedup bool) *Orchestrator {
	return &Orchestrator{
		fetcher:  fetcher,
		repo:     repo,
		resolver: resolver,
		log:      log,
		vinDedup: vinDedup,
		state:    StateIdle,
		trigger:  make(chan struct{}, 1),
	}
}

// State 当前状态（观测用）。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !canTransition(o.state, to) {
		return fmt.Errorf("invalid sync state transition: %s -> %s", o.state, to)
	}
	o.state = to
	return nil
}

// TriggerNow 在定时之外手动触发一轮（非阻塞；已有触发挂起时合并）。
func (o *Orchestrator) TriggerNow() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run 按固定间隔驱动 RunOnce，直到 ctx 取消。与请求流量无关。
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.log.Infof("sync orchestrator started, interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			o.log.Info("sync orchestrator stopped")
			return
		case <-ticker.C:
		case <-o.trigger:
		}

		if _, err := o.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			o.log.Errorf("sync run failed: %v", err)
		}
	}
}

// RunOnce 执行一轮同步：整批拉取（失败则本轮作废），逐条独立处理
// （单条失败只跳过，绝不中断整批）。可安全重复执行。
func (o *Orchestrator) RunOnce(ctx context.Context) (*Report, error) {
	if err := o.transition(StateFetching); err != nil {
		return nil, ErrRunInProgress
	}
	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
	}()

	report := &Report{StartedAt: time.Now()}

	records, err := o.fetcher.FetchBatch(ctx)
	if err != nil {
		// 拉取边界整批全有或全无：不做任何部分处理
		o.log.Errorf("sync fetch aborted: %v", err)
		return nil, err
	}
	report.Fetched = len(records)

	if err := o.transition(StateProcessing); err != nil {
		return nil, err
	}

	for i := range records {
		o.processRecord(ctx, records[i], report)
	}

	report.FinishedAt = time.Now()
	o.log.WithFields(map[string]interface{}{
		"fetched":        report.Fetched,
		"makes_created":  report.MakesCreated,
		"models_created": report.ModelsCreated,
		"cars_created":   report.CarsCreated,
		"cars_skipped":   report.CarsSkipped,
		"incomplete":     report.Incomplete,
	}).Info("sync run completed")
	return report, nil
}

func (o *Orchestrator) processRecord(ctx context.Context, rec Record, report *Report) {
	if !rec.complete() {
		report.Incomplete++
		o.log.Warnf("skipping incomplete feed record: object_id=%q make=%q model=%q year=%d",
			rec.ObjectID, rec.Make, rec.Model, rec.Year)
		return
	}

	// 事务回滚时局部计数一并作废，聚合只反映真正落库的结果
	stats := catalog.ResolveStats{}
	carCreated := false
	vinSkipped := false

	err := o.repo.Transaction(ctx, func(tx *catalog.Repo) error {
		resolver := o.resolver.WithRepo(tx)
		cm, err := resolver.ResolveCarModel(ctx, rec.Make, rec.Model, rec.Year, &stats)
		if err != nil {
			return err
		}

		if o.vinDedup {
			if _, err := tx.FindCarByVIN(ctx, rec.ObjectID); err == nil {
				vinSkipped = true
				return nil
			} else if !errors.Is(err, catalog.ErrNotFound) {
				return err
			}
		}

		if _, err := resolver.AppendCar(ctx, cm.ID, rec.ObjectID); err != nil {
			if errors.Is(err, catalog.ErrAlreadyExists) {
				// VIN 撞车：同批重复或并发写入抢先，按跳过处理
				vinSkipped = true
				o.log.Warnf("vin collision, skipping record object_id=%s", rec.ObjectID)
				return nil
			}
			return err
		}
		carCreated = true
		return nil
	})
	if err != nil {
		report.CarsSkipped++
		o.log.Warnf("skipping feed record object_id=%s: %v", rec.ObjectID, err)
		return
	}

	if stats.MakeCreated {
		report.MakesCreated++
	}
	if stats.ModelCreated {
		report.ModelsCreated++
	}
	if carCreated {
		report.CarsCreated++
	}
	if vinSkipped {
		report.CarsSkipped++
	}
}
