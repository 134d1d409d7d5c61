// Package isarobserve 暴露 Prometheus 指标
package isarobserve

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	InstanceOpens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_instance_opens_total",
		Help: "实例 open 调用总数（含命中已打开实例的调用）",
	})
	MigrationRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_migrations_total",
		Help: "实际执行的 schema 迁移次数",
	})
	TxnCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_txn_commits_total",
		Help: "成功提交的事务数",
	})
	TxnAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_txn_aborts_total",
		Help: "中止的事务数",
	})
	CommitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_txn_commit_failures_total",
		Help: "引擎级提交失败数（对应连接被放弃）",
	})
	PoolHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_pool_hits_total",
		Help: "连接池命中空闲连接的次数",
	})
	PoolMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_pool_misses_total",
		Help: "连接池未命中、新建连接的次数",
	})
	ConnDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_conns_dropped_total",
		Help: "因池已满或提交失败而被关闭丢弃的连接数",
	})
	ExternalChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isar_external_file_changes_total",
		Help: "检测到实例数据库文件被外部修改的次数",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(
		InstanceOpens, MigrationRuns,
		TxnCommits, TxnAborts, CommitFailures,
		PoolHits, PoolMisses, ConnDropped,
		ExternalChanges,
	)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }
