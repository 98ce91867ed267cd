package rollout

import (
	"fmt"
	"math"
	"time"

	"fleet-rollout/internal/model"
)

// Policy 阶段晋级/回滚策略, 来自所属更新组
type Policy struct {
	AutoPromote             bool
	SuccessThresholdPercent float64
	FailureThresholdPercent float64
	MinDevicesForDecision   int
	WaitTime                time.Duration
}

// PolicyFromGroup 读取更新组当前策略
func PolicyFromGroup(group *model.UpdateGroup) Policy {
	return Policy{
		AutoPromote:             group.AutoPromote,
		SuccessThresholdPercent: group.SuccessThresholdPercent,
		FailureThresholdPercent: group.FailureThresholdPercent,
		MinDevicesForDecision:   group.MinDevicesForDecision,
		WaitTime:                time.Duration(group.WaitTimeMinutes) * time.Minute,
	}
}

// Counters 阶段计数器
type Counters struct {
	Total     int
	Completed int
	Failed    int
}

// CountersOf 读取阶段计数器
func CountersOf(stage *model.RolloutStage) Counters {
	return Counters{
		Total:     stage.TotalDevices,
		Completed: stage.CompletedDevices,
		Failed:    stage.FailedDevices,
	}
}

// Decision 评估结论
type Decision string

const (
	DecisionRollback Decision = "rollback"
	DecisionPromote  Decision = "promote"
	DecisionWait     Decision = "wait"
)

// Evaluation 一次评估结果
type Evaluation struct {
	CompletionRate float64
	SuccessRate    float64
	FailureRate    float64
	Responded      int
	WaitRemaining  time.Duration
	ShouldRollback bool
	CanAutoPromote bool
	Reason         string
}

// Decision 回滚优先于晋级
func (e Evaluation) Decision() Decision {
	switch {
	case e.ShouldRollback:
		return DecisionRollback
	case e.CanAutoPromote:
		return DecisionPromote
	default:
		return DecisionWait
	}
}

// Evaluate 纯函数, elapsed 为阶段已运行时长
// 空阶段视为全部完成
func Evaluate(c Counters, p Policy, elapsed time.Duration) Evaluation {
	responded := c.Completed + c.Failed

	var eval Evaluation
	eval.Responded = responded
	if c.Total > 0 {
		eval.CompletionRate = float64(responded) / float64(c.Total) * 100
		eval.SuccessRate = float64(c.Completed) / float64(c.Total) * 100
		eval.FailureRate = float64(c.Failed) / float64(c.Total) * 100
	} else {
		eval.CompletionRate = 100
		eval.SuccessRate = 100
	}

	if remaining := p.WaitTime - elapsed; remaining > 0 {
		eval.WaitRemaining = remaining
	}

	// 设备数少于最小样本数的阶段不会自动决策, 只能人工晋级或回滚
	minDevices := p.MinDevicesForDecision
	sampled := responded >= minDevices || c.Total == 0

	// 是否回滚与 AutoPromote 无关
	eval.ShouldRollback = sampled && c.Total > 0 && eval.FailureRate >= p.FailureThresholdPercent
	eval.CanAutoPromote = p.AutoPromote &&
		eval.SuccessRate >= p.SuccessThresholdPercent &&
		eval.WaitRemaining == 0 &&
		sampled

	switch {
	case eval.ShouldRollback:
		eval.Reason = fmt.Sprintf("失败率 %.1f%% 达到回滚阈值 %.1f%%", eval.FailureRate, p.FailureThresholdPercent)
	case eval.CanAutoPromote:
		eval.Reason = fmt.Sprintf("成功率 %.1f%% 满足自动晋级条件", eval.SuccessRate)
	case !sampled:
		eval.Reason = fmt.Sprintf("等待更多设备响应: 还需 %d 台", minDevices-responded)
	case !p.AutoPromote:
		eval.Reason = "等待人工晋级"
	case eval.WaitRemaining > 0:
		eval.Reason = fmt.Sprintf("驻留时间未满: 还需等待 %d 分钟", int(math.Ceil(eval.WaitRemaining.Minutes())))
	default:
		eval.Reason = fmt.Sprintf("成功率 %.1f%% 低于晋级阈值 %.1f%%", eval.SuccessRate, p.SuccessThresholdPercent)
	}
	return eval
}
