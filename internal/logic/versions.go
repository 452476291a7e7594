package logic

import "sync"

// Versions 记录数据失效次数, 客户端据此判断是否需要重新拉取
type Versions struct {
	mu        sync.RWMutex
	list      uint64
	campaigns map[uint64]uint64
}

// NewVersions 创建版本表
func NewVersions() *Versions {
	return &Versions{campaigns: make(map[uint64]uint64)}
}

// Invalidate 项目变化时同时使列表失效, nil 只使列表失效
func (v *Versions) Invalidate(campaignID *uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.list++
	if campaignID != nil {
		v.campaigns[*campaignID]++
	}
}

// List 列表版本
func (v *Versions) List() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.list
}

// Campaign 单个项目版本
func (v *Versions) Campaign(id uint64) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.campaigns[id]
}
