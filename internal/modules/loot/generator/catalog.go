// Package generator 掉落表目录、加权掉落生成器与掉落表提供者。
package generator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// QualityWeight 品质权重
type QualityWeight struct {
	Quality string `yaml:"quality" json:"quality"`
	Weight  int    `yaml:"weight" json:"weight"`
}

// Drop 掉落表中的一项
type Drop struct {
	ItemCode string `yaml:"item_code" json:"item_code"`
	// Chance 掉落概率，取值 (0, 1]，未填写时为 1
	Chance     float64         `yaml:"chance" json:"chance"`
	Min        int             `yaml:"min" json:"min"`
	Max        int             `yaml:"max" json:"max"`
	Guaranteed bool            `yaml:"guaranteed,omitempty" json:"guaranteed,omitempty"`
	Qualities  []QualityWeight `yaml:"qualities,omitempty" json:"qualities,omitempty"`
}

// TableSpec 掉落表
type TableSpec struct {
	TableName string `yaml:"name" json:"name"`
	// MaxDrops 单次抽取最多产出的物品条目数，0 表示不限
	MaxDrops int    `yaml:"max_drops,omitempty" json:"max_drops,omitempty"`
	Drops    []Drop `yaml:"drops" json:"drops"`
}

// Name 实现 service.Table
func (t *TableSpec) Name() string { return t.TableName }

// NPCPrototype NPC 原型的掉落配置
type NPCPrototype struct {
	Name                string   `yaml:"name"`
	GlobalTables        []string `yaml:"global_tables"`
	UniqueTables        []string `yaml:"unique_tables"`
	LootConfigShortCode string   `yaml:"loot_config_short_code"`
}

// Catalog 掉落表与 NPC 原型目录
type Catalog struct {
	Tables []TableSpec    `yaml:"tables"`
	NPCs   []NPCPrototype `yaml:"npcs"`
	tables map[string]*TableSpec
	npcs   map[string]*NPCPrototype
}

// LoadCatalog 从 YAML 文件加载目录
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog 解析 YAML 目录
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

// Normalize 补全缺省值
func (c *Catalog) Normalize() {
	for i := range c.Tables {
		c.Tables[i].Normalize()
	}
	for i := range c.NPCs {
		c.NPCs[i].Name = strings.TrimSpace(c.NPCs[i].Name)
	}
}

// Normalize 补全掉落项的缺省值
func (t *TableSpec) Normalize() {
	t.TableName = strings.TrimSpace(t.TableName)
	for i := range t.Drops {
		d := &t.Drops[i]
		if d.Chance == 0 || d.Guaranteed {
			d.Chance = 1
		}
		if d.Min <= 0 {
			d.Min = 1
		}
		if d.Max < d.Min {
			d.Max = d.Min
		}
	}
}

// Validate 校验目录
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.TableName] {
			return fmt.Errorf("duplicate table %q", t.TableName)
		}
		seen[t.TableName] = true
	}

	npcs := make(map[string]bool, len(c.NPCs))
	for _, n := range c.NPCs {
		if n.Name == "" {
			return fmt.Errorf("npc name is empty")
		}
		if npcs[n.Name] {
			return fmt.Errorf("duplicate npc %q", n.Name)
		}
		npcs[n.Name] = true
		for _, ref := range append(append([]string(nil), n.GlobalTables...), n.UniqueTables...) {
			if !seen[ref] {
				return fmt.Errorf("npc %q references unknown table %q", n.Name, ref)
			}
		}
	}
	return nil
}

// Validate 校验掉落表
func (t *TableSpec) Validate() error {
	if t.TableName == "" {
		return fmt.Errorf("table name is empty")
	}
	if t.MaxDrops < 0 {
		return fmt.Errorf("table %q: max_drops must be >= 0", t.TableName)
	}
	for _, d := range t.Drops {
		if d.ItemCode == "" {
			return fmt.Errorf("table %q: item_code is empty", t.TableName)
		}
		if d.Chance < 0 || d.Chance > 1 {
			return fmt.Errorf("table %q: item %q chance out of range", t.TableName, d.ItemCode)
		}
		for _, q := range d.Qualities {
			if q.Weight < 0 {
				return fmt.Errorf("table %q: item %q has negative quality weight", t.TableName, d.ItemCode)
			}
		}
	}
	return nil
}

func (c *Catalog) index() {
	c.tables = make(map[string]*TableSpec, len(c.Tables))
	for i := range c.Tables {
		c.tables[c.Tables[i].TableName] = &c.Tables[i]
	}
	c.npcs = make(map[string]*NPCPrototype, len(c.NPCs))
	for i := range c.NPCs {
		c.npcs[c.NPCs[i].Name] = &c.NPCs[i]
	}
}

// Table 按名称查找掉落表
func (c *Catalog) Table(name string) (*TableSpec, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Prototype 按名称查找 NPC 原型
func (c *Catalog) Prototype(name string) (NPCPrototype, bool) {
	p, ok := c.npcs[name]
	if !ok {
		return NPCPrototype{}, false
	}
	return *p, true
}
