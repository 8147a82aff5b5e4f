package rename_test

import (
	"fmt"

	"github.com/maemowong/suprax/proto/rename"
	"github.com/maemowong/suprax/proto/rob"
)

// ExampleEngine renames one batch against the reference ROB.
func ExampleEngine() {
	seq, err := rob.New(rob.DefaultConfig())
	if err != nil {
		panic(err)
	}
	e, err := rename.NewEngine(rename.DefaultConfig(), seq)
	if err != nil {
		panic(err)
	}

	res := e.Step(batch(wr(5, 1), mv(6, 5), wr(7, 5, 2), br(7)))
	for _, ri := range res.Renamed {
		switch {
		case ri.Eliminated:
			fmt.Printf("%d: %s = p%d (eliminated)\n", ri.Key, ri.Inst.Dest, ri.PDest)
		case ri.HasDest:
			fmt.Printf("%d: %s = p%d\n", ri.Key, ri.Inst.Dest, ri.PDest)
		default:
			fmt.Printf("%d: branch, checkpoint=%v\n", ri.Key, ri.Checkpoint)
		}
	}
	// Output:
	// 0: r5 = p32
	// 1: r6 = p32 (eliminated)
	// 2: r7 = p33
	// 3: branch, checkpoint=true
}
