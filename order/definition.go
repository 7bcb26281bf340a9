package order

import (
	"fmt"
	"strings"
	"time"
)

// Type 订单类型：普通或加急。
type Type string

const (
	TypeStandard Type = "STANDARD"
	TypeExpress  Type = "EXPRESS"
)

// Difficulty 订单难度。
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Requirement 特殊处理要求（位集合）。
type Requirement uint8

const (
	RequirementNone          Requirement = 0
	RequirementFragile       Requirement = 1 << 0
	RequirementRefrigeration Requirement = 1 << 1
	RequirementHazardous     Requirement = 1 << 2
)

var requirementLabels = []struct {
	flag  Requirement
	name  string
	label string
}{
	{RequirementFragile, "fragile", "Fragile"},
	{RequirementRefrigeration, "refrigeration", "Refrigeration Required"},
	{RequirementHazardous, "hazardous", "Hazardous Material"},
}

// ParseRequirement 把配置中的名称（fragile/refrigeration/hazardous）转成标志位。
func ParseRequirement(name string) (Requirement, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, r := range requirementLabels {
		if r.name == n {
			return r.flag, nil
		}
	}
	return RequirementNone, fmt.Errorf("unknown requirement %q", name)
}

// Definition 订单定义，加载后不可变。
type Definition struct {
	ID               string
	Type             Type
	Difficulty       Difficulty
	CustomerName     string
	CustomerNotes    string
	RequiredProducts []string // 商品 ID
	BasePoints       int
	ExpressBonus     int
	ExpressTimeLimit time.Duration
	Requirements     Requirement
	PriorityLevel    int    // 1-5，5 最紧急
	PriorityColor    string // UI 高亮色，如 #ff3300
}

// IsExpress 是否加急单。
func (d Definition) IsExpress() bool { return d.Type == TypeExpress }

// Points 完成该订单应得分数：基础分，加急单另加 ExpressBonus。
func (d Definition) Points() int {
	if d.IsExpress() {
		return d.BasePoints + d.ExpressBonus
	}
	return d.BasePoints
}

// HasRequirement 检查是否带有指定特殊要求。
func (d Definition) HasRequirement(r Requirement) bool {
	return d.Requirements&r != 0
}

// RequirementsDescription 返回特殊要求的可读描述。
func (d Definition) RequirementsDescription() string {
	if d.Requirements == RequirementNone {
		return "No special requirements"
	}
	parts := make([]string, 0, len(requirementLabels))
	for _, r := range requirementLabels {
		if d.HasRequirement(r.flag) {
			parts = append(parts, r.label)
		}
	}
	return strings.Join(parts, ", ")
}

func (d Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("order id is required")
	}
	switch d.Type {
	case TypeStandard, TypeExpress:
	default:
		return fmt.Errorf("order %s: unknown type %q", d.ID, d.Type)
	}
	switch d.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("order %s: unknown difficulty %q", d.ID, d.Difficulty)
	}
	if d.BasePoints < 0 || d.ExpressBonus < 0 {
		return fmt.Errorf("order %s: points must be >= 0", d.ID)
	}
	if d.IsExpress() && d.ExpressTimeLimit <= 0 {
		return fmt.Errorf("order %s: express time limit must be > 0", d.ID)
	}
	if d.PriorityLevel < 1 || d.PriorityLevel > 5 {
		return fmt.Errorf("order %s: priority level must be within 1..5", d.ID)
	}
	return nil
}
