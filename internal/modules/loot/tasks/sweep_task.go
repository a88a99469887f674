package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
)

// Sweeper 巡检任务依赖的注册表能力
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) int
	Count() int
}

// LootSweepTask 掉落容器巡检定时任务
// 销毁定时器未能及时回收的过期容器，并刷新存活容器数量指标
type LootSweepTask struct {
	sweeper Sweeper
	spec    string
	metrics *metrics.LootMetrics
	service string
	clock   func() time.Time
	logger  log.Logger
	cron    *cron.Cron
}

// NewLootSweepTask 创建巡检任务实例
func NewLootSweepTask(sweeper Sweeper, spec string, m *metrics.LootMetrics, service string, logger log.Logger) *LootSweepTask {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &LootSweepTask{
		sweeper: sweeper,
		spec:    spec,
		metrics: m,
		service: service,
		clock:   time.Now,
		logger:  logger,
	}
}

// Start 启动定时任务
// Cron 表达式带秒字段: 秒 分 时 日 月 周
func (t *LootSweepTask) Start() error {
	t.cron = cron.New(cron.WithSeconds())

	if _, err := t.cron.AddFunc(t.spec, func() { t.RunOnce(context.Background()) }); err != nil {
		t.logger.Error("【掉落定时任务】添加巡检任务失败", err, log.String("spec", t.spec))
		return err
	}

	t.cron.Start()
	t.logger.Info("【掉落定时任务】巡检任务已启动", log.String("spec", t.spec))
	return nil
}

// RunOnce 执行一次巡检，返回销毁的容器数量
func (t *LootSweepTask) RunOnce(ctx context.Context) int {
	n := t.sweeper.SweepExpired(ctx, t.clock())
	live := t.sweeper.Count()
	if t.metrics != nil {
		t.metrics.SetLive(live, t.service)
	}

	if n > 0 {
		t.logger.Info("【掉落定时任务】巡检完成",
			log.Int("despawned", n),
			log.Int("live", live))
	} else {
		t.logger.Debug("【掉落定时任务】没有过期容器", log.Int("live", live))
	}
	return n
}

// Stop 停止定时任务，等待正在执行的巡检结束
func (t *LootSweepTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【掉落定时任务】正在停止巡检任务...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【掉落定时任务】巡检任务已停止")
	}
}
