package core

import (
	"context"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// job 带槽位下标的待处理URL
type job struct {
	index  int
	record models.URLRecord
}

// WorkQueue 一个批次内的任务队列
// 创建时一次性装满并关闭channel, 工作goroutine用 Pop 竞争取任务
type WorkQueue struct {
	jobs chan job
}

// NewWorkQueue 为一个批次创建任务队列, index 为记录在批次内的位置
func NewWorkQueue(records []models.URLRecord) *WorkQueue {
	q := &WorkQueue{jobs: make(chan job, len(records))}
	for i, rec := range records {
		q.jobs <- job{index: i, record: rec}
	}
	close(q.jobs)
	return q
}

// Pop 取出下一个任务
// 队列为空或ctx取消时返回 false
func (q *WorkQueue) Pop(ctx context.Context) (job, bool) {
	if ctx.Err() != nil {
		return job{}, false
	}
	select {
	case <-ctx.Done():
		return job{}, false
	case j, ok := <-q.jobs:
		if !ok {
			return job{}, false
		}
		return j, true
	}
}

// PendingCount 返回尚未取出的任务数
func (q *WorkQueue) PendingCount() int {
	return len(q.jobs)
}
