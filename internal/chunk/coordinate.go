package chunk

import (
	"fmt"
	"math"
	"strconv"
)

// Dimension is the normalized dimension name used in commands and keys.
type Dimension string

const (
	Overworld Dimension = "overworld"
	Nether    Dimension = "nether"
	End       Dimension = "end"
)

// NormalizeDimension maps either a numeric dimension id (0/1/2) or a string
// name to a Dimension. Unknown values pass through as-is so a future game
// build with extra dimensions still produces stable keys.
func NormalizeDimension(v any) Dimension {
	switch d := v.(type) {
	case nil:
		return Overworld
	case Dimension:
		return d
	case string:
		if d == "" {
			return Overworld
		}
		return Dimension(d)
	case int:
		return dimensionByID(d)
	case int32:
		return dimensionByID(int(d))
	case int64:
		return dimensionByID(int(d))
	case float64:
		// JSON numbers arrive as float64.
		return dimensionByID(int(d))
	default:
		return Dimension(fmt.Sprint(v))
	}
}

func dimensionByID(id int) Dimension {
	switch id {
	case 0:
		return Overworld
	case 1:
		return Nether
	case 2:
		return End
	default:
		return Dimension(strconv.Itoa(id))
	}
}

// AllY is the YSlice value meaning "full column, no Y slice requested".
// It sits outside any reachable player altitude so a slice at Y -1 stays
// a slice; the wire command uses 255 as the sentinel instead.
const AllY int32 = math.MinInt32

// Coordinate identifies one chunk column. Two coordinates are equal iff all
// four fields match, which makes the struct usable as a map key directly.
type Coordinate struct {
	Dim    Dimension
	X, Z   int32
	YSlice int32 // AllY when no slice was requested
}

func (c Coordinate) String() string {
	y := "all"
	if c.YSlice != AllY {
		y = strconv.FormatInt(int64(c.YSlice), 10)
	}
	return fmt.Sprintf("%s:%d:%d:%s", c.Dim, c.X, c.Z, y)
}

// CommandY returns the Y argument for the getchunkdata command line,
// substituting the wire sentinel 255 for a full-column request.
func (c Coordinate) CommandY() int32 {
	if c.YSlice == AllY {
		return 255
	}
	return c.YSlice
}
