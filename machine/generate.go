package machine

import (
	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/gcode"
)

func motionWord(feed float64) gcode.Word {
	if feed <= 0 {
		return gcode.Word{W: 'G', Arg: 0}
	}
	return gcode.Word{W: 'G', Arg: 1}
}

func axes(b gcode.Block, p coord.Point, feed float64) gcode.Block {
	b = append(b,
		gcode.Word{W: 'X', Arg: p.X},
		gcode.Word{W: 'Y', Arg: p.Y},
		gcode.Word{W: 'Z', Arg: p.Z},
	)
	if feed > 0 {
		b = append(b, gcode.Word{W: 'F', Arg: feed})
	}
	return b
}

func generateMoveAbsolute(p coord.Point, feed float64) []gcode.Block {
	return []gcode.Block{
		axes(gcode.Block{
			{W: 'G', Arg: 21},
			{W: 'G', Arg: 53},
			motionWord(feed),
		}, p, feed),
	}
}

func generateMoveRelative(d coord.Point, feed float64) []gcode.Block {
	return []gcode.Block{
		axes(gcode.Block{
			{W: 'G', Arg: 21},
			{W: 'G', Arg: 91},
			motionWord(feed),
		}, d, feed),
		{{W: 'G', Arg: 90}},
	}
}

func generateProbe(d coord.Point, feed float64) []gcode.Block {
	return []gcode.Block{
		axes(gcode.Block{
			{W: 'G', Arg: 21},
			{W: 'G', Arg: 91},
			{W: 'G', Arg: 38.2},
		}, d, feed),
		{{W: 'G', Arg: 90}},
	}
}
