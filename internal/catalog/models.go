package catalog

import "backend-ollana/internal/shared/geo"

type Difficulty string

const (
	DifficultyLow    Difficulty = "L"
	DifficultyMedium Difficulty = "M"
	DifficultyHigh   Difficulty = "H"
)

type Mountain struct {
	ID         int64      `json:"mountainId"`
	Name       string     `json:"mountainName"`
	Location   string     `json:"location"`
	Height     float64    `json:"height"`
	Lat        float64    `json:"latitude"`
	Lng        float64    `json:"longitude"`
	Difficulty Difficulty `json:"level"`
	Badge      string     `json:"badge"`
}

type Path struct {
	ID         int64        `json:"pathId"`
	MountainID int64        `json:"mountainId"`
	Name       string       `json:"pathName"`
	LengthM    float64      `json:"pathLength"`
	Duration   string       `json:"pathTime"`
	Difficulty Difficulty   `json:"level"`
	Route      geo.Polyline `json:"route"`
	Center     geo.Point    `json:"centerPoint"`
}

// Summit is the last coordinate of the route.
func (p Path) Summit() (geo.Point, bool) {
	return p.Route.Terminal()
}

type Suggestion struct {
	ID   int64  `json:"mountainId"`
	Name string `json:"mountainName"`
}

type MountainWithPaths struct {
	Mountain Mountain `json:"mountain"`
	Paths    []Path   `json:"paths"`
}
