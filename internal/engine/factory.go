package engine

import (
	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/store"
)

func New(cfg *store.Config, brk interfaces.Broker, watcher interfaces.SettlementWatcher) interfaces.Rebalancer {
	exec := newOrderExecutor(brk, cfg.Executor)
	return newOrchestrator(brk, exec, watcher, cfg)
}
