package order

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOrderNotActive = errors.New("order not active")
	ErrEmptyCatalog   = errors.New("order catalog is empty")
	ErrAtCapacity     = errors.New("active orders at capacity")
	ErrUnknownProduct = errors.New("unknown product")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrOrdersActive   = errors.New("orders still active")
)

// Catalog 可刷新的订单定义池，构造后只读。
type Catalog struct {
	defs     []Definition
	byID     map[string]int
	products map[string]Product
}

// NewCatalog 校验并构建目录。订单引用的商品必须存在于 products 中。
// 允许 defs 为空：调度器遇到空目录只记录告警。
func NewCatalog(products []Product, defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:     make([]Definition, 0, len(defs)),
		byID:     make(map[string]int, len(defs)),
		products: make(map[string]Product, len(products)),
	}
	for _, p := range products {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("product %s: %w", p.ID, ErrDuplicateID)
		}
		c.products[p.ID] = p
	}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("order %s: %w", d.ID, ErrDuplicateID)
		}
		for _, pid := range d.RequiredProducts {
			if _, ok := c.products[pid]; !ok {
				return nil, fmt.Errorf("order %s references %s: %w", d.ID, pid, ErrUnknownProduct)
			}
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d.clone())
	}
	return c, nil
}

// Len 订单定义数量。
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// At 按下标取定义，供随机挑选使用。
func (c *Catalog) At(i int) Definition {
	return c.defs[i].clone()
}

// Definition 按 ID 查找定义。
func (c *Catalog) Definition(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i].clone(), true
}

// Definitions 返回全部定义（拷贝），保持加载顺序。
func (c *Catalog) Definitions() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.clone()
	}
	return out
}

// Product 按 ID 查找商品。
func (c *Catalog) Product(id string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.products[id]
	return p, ok
}

// Products 返回全部商品，按 ID 排序。
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d Definition) clone() Definition {
	if d.RequiredProducts != nil {
		d.RequiredProducts = append([]string(nil), d.RequiredProducts...)
	}
	return d
}
