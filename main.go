package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/snapviewdb/snapview/conf"
	"github.com/snapviewdb/snapview/logger"
	"github.com/snapviewdb/snapview/manager"
	"github.com/snapviewdb/snapview/mvcc"
)

const help = `
*********************************************************
 snapview - MVCC一致性读可见性子系统
*********************************************************
*帮助:
*1. -- help
*2. -- configPath   指定snapview.ini配置文件
*3. -- workers      并发worker数
*4. -- duration     压测持续时间
*********************************************************
`

func main() {
	var (
		configPath string
		workers    int
		duration   time.Duration
	)
	pflag.StringVar(&configPath, "configPath", "", "配置文件路径")
	pflag.IntVar(&workers, "workers", 4, "并发worker数")
	pflag.DurationVar(&duration, "duration", 3*time.Second, "压测持续时间")
	pflag.Parse()

	fmt.Print(help)

	config, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}); err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		return
	}

	logger.Infof("snapview starting, workers=%d duration=%s read_only=%v",
		workers, duration, config.ReadOnly)

	m := manager.NewMVCCManager(&manager.MVCCConfig{
		TxTimeout:     config.TxTimeout,
		MaxActiveTxs:  config.MaxActiveTxs,
		ReadOnly:      config.ReadOnly,
		ValidateViews: config.ValidateViews,
	})

	purge := manager.NewPurgeManager(m.Views(), config.PurgeInterval)
	purge.Start(context.Background())
	defer purge.Stop()

	runWorkload(m, workers, duration)

	stats := m.Stats()
	pstats := purge.Stats()
	logger.Infof("workload finished: next_trx_id=%d active_txs=%d open_views=%d",
		stats.NextTrxID, stats.ActiveTransactions, stats.OpenReadViews)
	logger.Infof("purge: runs=%d boundary_no=%d advanced=%d",
		pstats.Runs, pstats.BoundaryNo, pstats.BoundaryAdvance)
}

// runWorkload 并发事务负载：开启事务、随机可见性探测、提交或回滚
func runWorkload(m *manager.MVCCManager, workers int, duration time.Duration) {
	deadline := time.Now().Add(duration)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))

			for time.Now().Before(deadline) {
				level := mvcc.LevelRepeatableRead
				if rnd.Intn(4) == 0 {
					level = mvcc.LevelReadCommitted
				}

				txID, err := m.BeginTransaction(level)
				if err != nil {
					logger.Warnf("begin failed: %v", err)
					time.Sleep(time.Millisecond)
					continue
				}

				// 随机探测若干版本的可见性
				for i := 0; i < 16; i++ {
					probe := mvcc.TrxID(rnd.Int63n(int64(txID) + 2))
					if _, err := m.IsVisible(txID, probe); err != nil {
						logger.Errorf("visibility probe failed: %v", err)
						break
					}
				}

				if rnd.Intn(10) == 0 {
					_ = m.RollbackTransaction(txID)
				} else {
					_ = m.CommitTransaction(txID)
				}
			}
		}(int64(w) + 1)
	}

	wg.Wait()
}
