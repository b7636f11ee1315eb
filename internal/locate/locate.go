// Package locate discovers landmark structures for the road network.
package locate

import "roadweaver/internal/model"

// Locator finds landmarks that have not been reported before. With
// nearPlayer set the search is centred on the player instead of spawn. It may
// return fewer than count positions, or none.
type Locator interface {
	Locate(count int, nearPlayer bool) []model.BlockPos
}

// Excluder is implemented by locators that can be told about landmarks found
// in an earlier session so they are not reported again.
type Excluder interface {
	Exclude(known ...model.BlockPos)
}

// Func adapts a function to Locator.
type Func func(count int, nearPlayer bool) []model.BlockPos

func (f Func) Locate(count int, nearPlayer bool) []model.BlockPos { return f(count, nearPlayer) }
