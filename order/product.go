package order

import "fmt"

// Category 商品分类。
type Category string

const (
	CategoryUncategorized Category = "UNCATEGORIZED"
	CategoryFood          Category = "FOOD"
	CategoryElectronics   Category = "ELECTRONICS"
	CategoryClothing      Category = "CLOTHING"
)

// Rarity 商品稀有度，影响刷新概率与计分倍率。
type Rarity string

const (
	RarityCommon   Rarity = "COMMON"
	RarityUncommon Rarity = "UNCOMMON"
	RarityRare     Rarity = "RARE"
	RarityVeryRare Rarity = "VERY_RARE"
)

// Product 可拣选打包的商品，订单定义通过 ID 引用。
type Product struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Weight      float64
	BasePoints  int
	Rarity      Rarity
	SpawnWeight int // 1-100
	Available   bool
}

// RarityMultiplier 稀有度计分倍率。
func (p Product) RarityMultiplier() float64 {
	switch p.Rarity {
	case RarityUncommon:
		return 1.5
	case RarityRare:
		return 2.0
	case RarityVeryRare:
		return 3.0
	default:
		return 1.0
	}
}

// EffectiveSpawnRate 综合稀有度与权重后的刷新率；下架商品为 0。
func (p Product) EffectiveSpawnRate() float64 {
	if !p.Available {
		return 0
	}
	factor := 1.0
	switch p.Rarity {
	case RarityUncommon:
		factor = 0.7
	case RarityRare:
		factor = 0.4
	case RarityVeryRare:
		factor = 0.2
	}
	return float64(p.SpawnWeight) * factor
}

func (p Product) validate() error {
	if p.ID == "" {
		return fmt.Errorf("product id is required")
	}
	switch p.Category {
	case CategoryUncategorized, CategoryFood, CategoryElectronics, CategoryClothing:
	default:
		return fmt.Errorf("product %s: unknown category %q", p.ID, p.Category)
	}
	switch p.Rarity {
	case RarityCommon, RarityUncommon, RarityRare, RarityVeryRare:
	default:
		return fmt.Errorf("product %s: unknown rarity %q", p.ID, p.Rarity)
	}
	if p.SpawnWeight < 1 || p.SpawnWeight > 100 {
		return fmt.Errorf("product %s: spawn weight must be within 1..100", p.ID)
	}
	if p.Weight < 0 {
		return fmt.Errorf("product %s: weight must be >= 0", p.ID)
	}
	return nil
}
