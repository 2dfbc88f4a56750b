package session

import "sync/atomic"

// Presence 在线连接计数
// 与 Registry 无关：被拒绝的重复连接不计数，已计数的连接断开时必须减一
type Presence struct {
	count    atomic.Int64
	onChange func(int64)
}

// NewPresence 创建计数器，onChange 在每次变化后以新值调用，可为空
func NewPresence(onChange func(int64)) *Presence {
	return &Presence{onChange: onChange}
}

// Increment 加一并返回新值
func (p *Presence) Increment() int64 {
	n := p.count.Add(1)
	p.notify(n)
	return n
}

// Decrement 减一并返回新值，不会小于零
func (p *Presence) Decrement() int64 {
	for {
		cur := p.count.Load()
		if cur <= 0 {
			return 0
		}
		if p.count.CompareAndSwap(cur, cur-1) {
			p.notify(cur - 1)
			return cur - 1
		}
	}
}

// Current 当前值
func (p *Presence) Current() int64 {
	return p.count.Load()
}

// OnChange 设置变化回调，需在连接开始前调用
func (p *Presence) OnChange(fn func(int64)) {
	p.onChange = fn
}

func (p *Presence) notify(n int64) {
	if p.onChange != nil {
		p.onChange(n)
	}
}
