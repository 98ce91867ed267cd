package rollout

import "fleet-rollout/pkg/constants"

// 状态流转来源: 内部/外部
const (
	SourceInside  int8 = 1 << 0 // 监控循环与内部流程
	SourceOutside int8 = 1 << 1 // 运维操作
)

// StateTransition 发布状态流转定义
type StateTransition struct {
	From        string
	To          string
	AllowSource int8 // 使用位运算
}

var allTransitions = []StateTransition{
	// 创建 -> 发布中
	{From: constants.RolloutStatusPending, To: constants.RolloutStatusInProgress, AllowSource: SourceOutside},
	// 暂停 -> 发布中(启动/恢复)
	{From: constants.RolloutStatusPaused, To: constants.RolloutStatusInProgress, AllowSource: SourceOutside},
	// 发布中 -> 暂停
	{From: constants.RolloutStatusInProgress, To: constants.RolloutStatusPaused, AllowSource: SourceOutside},
	// 发布中 -> 完成(最后阶段晋级)
	{From: constants.RolloutStatusInProgress, To: constants.RolloutStatusCompleted, AllowSource: SourceInside | SourceOutside},
	// 发布中 -> 失败(下一阶段无法启动)
	{From: constants.RolloutStatusInProgress, To: constants.RolloutStatusFailed, AllowSource: SourceInside | SourceOutside},

	// 任意非终态 -> 回滚
	{From: constants.RolloutStatusPending, To: constants.RolloutStatusRolledBack, AllowSource: SourceOutside},
	{From: constants.RolloutStatusInProgress, To: constants.RolloutStatusRolledBack, AllowSource: SourceInside | SourceOutside},
	{From: constants.RolloutStatusPaused, To: constants.RolloutStatusRolledBack, AllowSource: SourceOutside},
	{From: constants.RolloutStatusFailed, To: constants.RolloutStatusRolledBack, AllowSource: SourceOutside},
}

type transitionTable map[string]map[string]StateTransition

func newTransitionTable(transitions []StateTransition) transitionTable {
	table := make(transitionTable)
	for _, t := range transitions {
		if table[t.From] == nil {
			table[t.From] = make(map[string]StateTransition)
		}
		table[t.From][t.To] = t
	}
	return table
}

// canTransition 检查是否可以进行状态转换
func (t transitionTable) canTransition(from, to string, source int8) bool {
	if transitions, ok := t[from]; ok {
		if transition, ok := transitions[to]; ok {
			return transition.AllowSource&source != 0
		}
	}
	return false
}
