// Package catalog holds the static reference data for the game: products,
// lab tiers, stash tiers, shipping methods, gear and market events. The
// tables are loaded once from the embedded YAML and never mutated at runtime.
package catalog

import (
	"errors"
	"fmt"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed data.yaml
var rawData []byte

var (
	ErrProductNotFound = errors.New("product not found")
	ErrMethodNotFound  = errors.New("shipping method not found")
	ErrGearNotFound    = errors.New("gear item not found")
)

type Product struct {
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	BasePrice     int64  `yaml:"base_price"`
	UnitsPerHour  int64  `yaml:"units_per_hour"`
	MinReputation int64  `yaml:"min_reputation"`
}

type LabLevel struct {
	Capacity    int64 `yaml:"capacity"`
	UpgradeCost int64 `yaml:"upgrade_cost"`
}

type LabProductionLevel struct {
	RateMult    int64 `yaml:"rate_mult"`
	UpgradeCost int64 `yaml:"upgrade_cost"`
}

type LabSpec struct {
	BuildCost        int64                `yaml:"build_cost"`
	CapacityLevels   []LabLevel           `yaml:"capacity_levels"`
	ProductionLevels []LabProductionLevel `yaml:"production_levels"`
}

type StashLevel struct {
	Capacity    int64 `yaml:"capacity"`
	UpgradeCost int64 `yaml:"upgrade_cost"`
}

type ShippingMethod struct {
	Key            string  `yaml:"key"`
	Name           string  `yaml:"name"`
	BuyCost        int64   `yaml:"buy_cost"`
	CapacityLevels []int64 `yaml:"capacity_levels"`
	CapacityCosts  []int64 `yaml:"capacity_costs"`
	SpeedSeconds   []int64 `yaml:"speed_seconds"`
	SpeedCosts     []int64 `yaml:"speed_costs"`
}

type Gear struct {
	Key        string  `yaml:"key"`
	Name       string  `yaml:"name"`
	Cost       int64   `yaml:"cost"`
	HP         int     `yaml:"hp"`
	Damage     int     `yaml:"damage"`
	Protection int     `yaml:"protection"`
	Accuracy   int     `yaml:"accuracy"`
	Evasion    int     `yaml:"evasion"`
	LootPower  float64 `yaml:"loot_power"`
}

type MarketEvent struct {
	Name       string  `yaml:"name"`
	Product    string  `yaml:"product"`
	Multiplier float64 `yaml:"multiplier"`
}

type data struct {
	Products        []Product        `yaml:"products"`
	Lab             LabSpec          `yaml:"lab"`
	StashLevels     []StashLevel     `yaml:"stash_levels"`
	ShippingMethods []ShippingMethod `yaml:"shipping_methods"`
	Gear            []Gear           `yaml:"gear"`
	MarketEvents    []MarketEvent    `yaml:"market_events"`
}

var (
	products    map[string]Product
	productKeys []string
	lab         LabSpec
	stashLevels []StashLevel
	methods     map[string]ShippingMethod
	gearItems   map[string]Gear
	events      []MarketEvent
)

func init() {
	var d data
	if err := yaml.Unmarshal(rawData, &d); err != nil {
		panic(fmt.Sprintf("catalog: parse embedded data: %v", err))
	}
	products = make(map[string]Product, len(d.Products))
	for _, p := range d.Products {
		products[p.Key] = p
		productKeys = append(productKeys, p.Key)
	}
	lab = d.Lab
	stashLevels = d.StashLevels
	methods = make(map[string]ShippingMethod, len(d.ShippingMethods))
	for _, m := range d.ShippingMethods {
		methods[m.Key] = m
	}
	gearItems = make(map[string]Gear, len(d.Gear))
	for _, g := range d.Gear {
		gearItems[g.Key] = g
	}
	events = d.MarketEvents
	for _, ev := range events {
		if _, ok := products[ev.Product]; !ok {
			panic(fmt.Sprintf("catalog: market event %q references unknown product %q", ev.Name, ev.Product))
		}
	}
}

func ProductByKey(key string) (Product, error) {
	p, ok := products[key]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, key)
	}
	return p, nil
}

// ProductKeys returns product keys in catalog declaration order.
func ProductKeys() []string {
	out := make([]string, len(productKeys))
	copy(out, productKeys)
	return out
}

func Lab() LabSpec {
	return lab
}

// LabCapacity returns the unit capacity for a 1-based capacity level.
func LabCapacity(level int) (int64, error) {
	if level < 1 || level > len(lab.CapacityLevels) {
		return 0, fmt.Errorf("invalid lab capacity level %d", level)
	}
	return lab.CapacityLevels[level-1].Capacity, nil
}

// LabRateMult returns the production multiplier for a 1-based production level.
func LabRateMult(level int) (int64, error) {
	if level < 1 || level > len(lab.ProductionLevels) {
		return 0, fmt.Errorf("invalid lab production level %d", level)
	}
	return lab.ProductionLevels[level-1].RateMult, nil
}

func MaxLabLevel() int {
	return len(lab.CapacityLevels)
}

// StashCapacity returns the per-product carry capacity for a 1-based stash level.
func StashCapacity(level int) (int64, error) {
	if level < 1 || level > len(stashLevels) {
		return 0, fmt.Errorf("invalid stash level %d", level)
	}
	return stashLevels[level-1].Capacity, nil
}

func StashUpgradeCost(level int) (int64, error) {
	if level < 1 || level > len(stashLevels) {
		return 0, fmt.Errorf("invalid stash level %d", level)
	}
	return stashLevels[level-1].UpgradeCost, nil
}

func MaxStashLevel() int {
	return len(stashLevels)
}

func MethodByKey(key string) (ShippingMethod, error) {
	m, ok := methods[key]
	if !ok {
		return ShippingMethod{}, fmt.Errorf("%w: %s", ErrMethodNotFound, key)
	}
	return m, nil
}

// Capacity returns the unit capacity for a 1-based capacity level.
func (m ShippingMethod) Capacity(level int) (int64, error) {
	if level < 1 || level > len(m.CapacityLevels) {
		return 0, fmt.Errorf("invalid capacity level %d for %s", level, m.Key)
	}
	return m.CapacityLevels[level-1], nil
}

// TransitSeconds returns the shipment duration for a 1-based speed level.
func (m ShippingMethod) TransitSeconds(level int) (int64, error) {
	if level < 1 || level > len(m.SpeedSeconds) {
		return 0, fmt.Errorf("invalid speed level %d for %s", level, m.Key)
	}
	return m.SpeedSeconds[level-1], nil
}

func GearByKey(key string) (Gear, error) {
	g, ok := gearItems[key]
	if !ok {
		return Gear{}, fmt.Errorf("%w: %s", ErrGearNotFound, key)
	}
	return g, nil
}

// MarketEvents returns the event table in declaration order. The hourly
// pricing hash indexes into this slice, so order is part of the contract.
func MarketEvents() []MarketEvent {
	out := make([]MarketEvent, len(events))
	copy(out, events)
	return out
}
