package asynqx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client 分析任务入队客户端
type Client struct {
	*asynq.Client
	queue string
}

// RedisConnOpt 入队客户端、Inspector 与 worker 共用同一个 Redis
func RedisConnOpt(redisURI string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURI)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	return opt, nil
}

func NewClient(redisURI, queue string) (*Client, error) {
	opt, err := RedisConnOpt(redisURI)
	if err != nil {
		return nil, err
	}
	return &Client{Client: asynq.NewClient(opt), queue: queue}, nil
}

// NewInspector 队列统计与就绪探测
func NewInspector(redisURI string) (*asynq.Inspector, error) {
	opt, err := RedisConnOpt(redisURI)
	if err != nil {
		return nil, err
	}
	return asynq.NewInspector(opt), nil
}

// EnqueueAnalysis 以 task_id 作为 asynq 任务 ID 入队，同一个 task_id 不会被重复入队
func (c *Client) EnqueueAnalysis(ctx context.Context, p AnalysisPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	opts := EnqueueOptions(EnqueueParams{
		TaskID: p.TaskID,
		Queue:  c.queue,
	})
	if _, err := c.Client.EnqueueContext(ctx, asynq.NewTask(TypeAnalysisRun, b), opts...); err != nil {
		return fmt.Errorf("enqueue analysis %s: %w", p.TaskID, err)
	}
	return nil
}
