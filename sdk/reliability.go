package sdk

import (
	"time"
)

// ReconnectPolicy 推送通道重连配置
type ReconnectPolicy struct {
	MaxAttempts    int           // 连续失败上限，默认 5
	InitialBackoff time.Duration // 初始退避时间，默认 1秒
	MaxBackoff     time.Duration // 最大退避时间，默认 30秒
	BackoffFactor  float64       // 退避因子，默认 2.0（指数退避）
}

// DefaultReconnectPolicy 默认重连配置：1s,2s,4s,8s,16s 后放弃
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

func (p ReconnectPolicy) normalize() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = d.BackoffFactor
	}
	return p
}

// Delay 第 attempt 次重连（从 0 开始）前的等待时间：min(initial*factor^attempt, max)
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	p = p.normalize()
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Schedule 返回完整的退避序列，便于日志与测试
func (p ReconnectPolicy) Schedule() []time.Duration {
	p = p.normalize()
	out := make([]time.Duration, p.MaxAttempts)
	for i := range out {
		out[i] = p.Delay(i)
	}
	return out
}

// timerFunc 可替换的定时器，测试里用来观察退避时间
type timerFunc func(d time.Duration, f func()) (stop func() bool)

func realTimer(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}
