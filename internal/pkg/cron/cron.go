package cron

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/qs3c/petvip_server/internal/service"
)

// PendingReconciler 后台对账
type PendingReconciler interface {
	ReconcilePending(ctx context.Context) (*service.PendingStats, error)
}

// Expirer 过期扫描
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

type Service struct {
	reconciler PendingReconciler
	expirer    Expirer
	interval   time.Duration
	loc        *time.Location
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewService(reconciler PendingReconciler, expirer Expirer, interval time.Duration, loc *time.Location) *Service {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		reconciler: reconciler,
		expirer:    expirer,
		interval:   interval,
		loc:        loc,
		stopChan:   make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(2)
	go s.runReconcile()
	go s.runDailyExpire()
	log.Printf("Cron service started (reconcile every %s + daily expiry)", s.interval)
}

// Stop 停止定时任务，等待正在执行的一轮结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	log.Println("Cron service stopped")
}

// runReconcile 按固定间隔核对待对账意向
func (s *Service) runReconcile() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.reconcileOnce()
		}
	}
}

// runDailyExpire 启动时扫描一次，之后每天业务时区零点扫描
func (s *Service) runDailyExpire() {
	defer s.wg.Done()

	s.expireOnce()

	timer := time.NewTimer(untilNextMidnight(time.Now(), s.loc))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			s.expireOnce()
			timer.Reset(untilNextMidnight(time.Now(), s.loc))
		}
	}
}

// RunNow 立即执行一轮对账和过期扫描
func (s *Service) RunNow() {
	s.expireOnce()
	s.reconcileOnce()
}

func (s *Service) reconcileOnce() {
	ctx, cancel := s.taskContext()
	defer cancel()

	stats, err := s.reconciler.ReconcilePending(ctx)
	if err != nil {
		if errors.Is(err, service.ErrReconcileDisabled) {
			return
		}
		log.Printf("Reconcile pending failed: %v", err)
		return
	}
	if stats.Checked > 0 || stats.Dropped > 0 {
		log.Printf("Reconcile pending: checked=%d, activated=%d, dropped=%d, failed=%d",
			stats.Checked, stats.Activated, stats.Dropped, stats.Failed)
	}
}

func (s *Service) expireOnce() {
	ctx, cancel := s.taskContext()
	defer cancel()

	n, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		log.Printf("Expire vip histories failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Expired %d vip histories", n)
	}
}

// taskContext 停止时取消正在执行的任务
func (s *Service) taskContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func untilNextMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.Sub(now)
}
