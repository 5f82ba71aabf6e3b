package util

import "math"

const (
	MinSectionScore = 5
	MaxSectionScore = 495
)

// ScaleSectionScore 将某一部分（听力或阅读）的原始正确数换算为 5~495 的 TOEIC 分数，步长为 5。
// 非完整试卷按比例折算到 100 题后再换算。
func ScaleSectionScore(correct, total int) int {
	if total <= 0 {
		return 0
	}
	if correct < 0 {
		correct = 0
	}
	if correct > total {
		correct = total
	}

	ratio := float64(correct) / float64(total)
	raw := ratio * float64(MaxSectionScore-MinSectionScore)
	scaled := MinSectionScore + int(math.Round(raw/5))*5

	if scaled < MinSectionScore {
		return MinSectionScore
	}
	if scaled > MaxSectionScore {
		return MaxSectionScore
	}
	return scaled
}

// EstimateLevel 根据总分给出 TOEIC 等级描述
func EstimateLevel(total int) string {
	switch {
	case total >= 905:
		return "International Professional"
	case total >= 785:
		return "Working Proficiency Plus"
	case total >= 605:
		return "Limited Working Proficiency"
	case total >= 405:
		return "Elementary Proficiency Plus"
	case total >= 255:
		return "Elementary Proficiency"
	default:
		return "Basic Proficiency"
	}
}

// AbilityToScore 将 IRT theta 粗略映射为 TOEIC 总分（theta=0 约为 600 分）
func AbilityToScore(theta float64) int {
	score := 600 + theta*150
	score = math.Round(score/5) * 5
	return int(math.Max(10, math.Min(990, score)))
}
