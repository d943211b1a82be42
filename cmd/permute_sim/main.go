// permute_sim drives the send/recv engines as a collective permute over the in-process
// communication runtime: it builds the configuration from the same compiled-attribute
// strings a compiler would emit, runs a number of iterations and checks the device
// buffers against a host-side reference of the gating semantics.
//
// Useful both as a demo and as a debugging harness for topologies and conditional
// bounds; run with -v=3 to watch every engine decision.
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/comms/inprocess"
	"github.com/gomlx/collectives/devices"
	"github.com/gomlx/collectives/p2p"
	"github.com/gomlx/collectives/types/shapes"
)

var (
	flagDevices    = flag.Int("devices", 4, "Number of simulated devices in the clique.")
	flagIterations = flag.Int("iterations", 8, "Number of times each engine is invoked.")
	flagElements   = flag.Int("elements", 1024, "Elements (float32) moved per transfer.")
	flagPairs      = flag.String("pairs", "", "Topology as source-target pairs in the compiled attribute "+
		"syntax, e.g. \"{{0,1},{1,2}}\". Defaults to a full ring over all devices.")
	flagValidation = flag.String("validation", "valid", "Replay gate: \"valid\", \"invalid\", or one "+
		"inclusive bound per pair in the attribute syntax, e.g. \"{{0,3},{0,3}}\" -- bounds and pairs "+
		"match positionally.")
	flagPipelined = flag.Bool("pipelined", false, "Mark the instruction for the second p2p stream channel.")
	flagChannel   = flag.Int64("channel", 1, "Channel id carried by the instruction; positive means "+
		"cross-partition logical ids, the way compilers emit send/recv.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	err := exceptions.TryCatch[error](run)
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 1, 0, 1).Align(lipgloss.Center)
	oddRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAA")).PaddingLeft(1).PaddingRight(1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 2, 0, 2)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func run() {
	numDevices := *flagDevices
	if numDevices < 2 {
		klog.Fatalf("-devices must be at least 2, got %d", numDevices)
	}
	iterations := *flagIterations
	if iterations < 1 {
		klog.Fatalf("-iterations must be at least 1, got %d", iterations)
	}

	pairsAttr := *flagPairs
	if pairsAttr == "" {
		pairsAttr = ringPairs(numDevices)
	}
	attrs := map[string]string{p2p.AttrSourceTargetPairs: pairsAttr}
	if *flagValidation != "valid" {
		attrs[p2p.AttrValidation] = *flagValidation
	}
	if *flagPipelined {
		attrs[p2p.AttrPipeline] = "1"
	}

	groupMode := devices.GroupModeForChannel(*flagChannel)
	replicaCount, partitionCount := numDevices, 1
	if groupMode == devices.CrossPartition {
		replicaCount, partitionCount = 1, numDevices
	}
	operand := shapes.Make(dtypes.Float32, *flagElements)
	config := must.M1(p2p.ConfigFromAttributes(groupMode, operand,
		int64(replicaCount), int64(partitionCount), attrs, p2p.WithName("permute_sim")))
	assignment := must.M1(devices.NewDefaultAssignment(replicaCount, partitionCount))

	runtime := comms.New()
	clique := must.M1(runtime.NewClique(numDevices))
	defer clique.Finalize()
	world, ok := clique.(*inprocess.Clique)
	if !ok {
		exceptions.Panicf("communication runtime %q is not the in-process one, the simulator can't drive it",
			runtime.Name())
	}

	printTopology(config, assignment, numDevices)

	buffer := p2p.Buffer{SourceSlice: 0, DestinationSlice: 1, ElementCount: int64(*flagElements)}
	send := p2p.NewSendThunk(config, []p2p.Buffer{buffer})
	recv := p2p.NewRecvThunk(config, []p2p.Buffer{buffer})

	streams := make([]*inprocess.Stream, numDevices)
	ranks := make([]comms.Comm, numDevices)
	srcs := make([]*inprocess.Memory, numDevices)
	dsts := make([]*inprocess.Memory, numDevices)
	for d := 0; d < numDevices; d++ {
		executor := world.Executor(d)
		must.M(send.Initialize(&p2p.InitializeParams{Executor: executor}))
		must.M(recv.Initialize(&p2p.InitializeParams{Executor: executor}))
		streams[d] = executor.NewStream()
		defer streams[d].Close()
		ranks[d] = must.M1(world.Comm(d))
		srcs[d] = inprocess.NewMemory(operand.Memory())
		fill(srcs[d], float32(d))
		dsts[d] = inprocess.NewMemory(operand.Memory())
	}

	bar := progressbar.NewOptions(iterations,
		progressbar.OptionSetDescription("permuting"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iterations"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII))
	start := time.Now()
	for iter := 0; iter < iterations; iter++ {
		for d := 0; d < numDevices; d++ {
			params := &p2p.ExecuteParams{
				Buffers:          []comms.Memory{srcs[d], dsts[d]},
				GlobalDeviceID:   devices.GlobalDeviceID(d),
				DeviceAssignment: assignment,
			}
			must.M(send.ExecuteOnStream(params, streams[d], ranks[d]))
			must.M(recv.ExecuteOnStream(params, streams[d], ranks[d]))
		}
		for d := 0; d < numDevices; d++ {
			must.M(streams[d].BlockHostUntilDone())
		}
		for d := 0; d < numDevices; d++ {
			copy(srcs[d].Float32s(), dsts[d].Float32s())
		}
		_ = bar.Add(1)
	}
	elapsed := time.Since(start)
	_ = bar.Finish()
	fmt.Println()

	expected, transfers := reference(config, assignment, numDevices, iterations)
	mismatches := printResults(dsts, expected, numDevices)

	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false)
	table.Row("runtime", runtime.Name())
	table.Row("clique", string(world.ID()))
	table.Row("group mode", config.GroupMode.String())
	table.Row("validation", config.Validation.String())
	table.Row("stream channel", config.StreamKind.String())
	table.Row("operand", fmt.Sprintf("%s (%s)", operand, humanize.IBytes(uint64(operand.Memory()))))
	table.Row("iterations", humanize.Comma(int64(iterations)))
	table.Row("transfers", humanize.Comma(int64(transfers)))
	table.Row("moved", humanize.IBytes(uint64(transfers)*uint64(operand.Memory())))
	table.Row("elapsed", elapsed.Round(time.Millisecond).String())
	fmt.Println(table.Render())

	if mismatches > 0 {
		klog.Errorf("%d device buffers diverged from the host reference", mismatches)
		os.Exit(1)
	}
}

func printTopology(config *p2p.Config, assignment *devices.Assignment, numDevices int) {
	fmt.Println(titleStyle.Render("Topology " + config.Topology.String()))
	table := newPlainTable(true)
	table.Row("Device", "Logical", "Sends To", "Receives From", "Bounds")
	for d := 0; d < numDevices; d++ {
		logical := must.M1(assignment.LogicalIDForDevice(devices.GlobalDeviceID(d)))
		id := logical.ID(config.GroupMode)
		entry, found := config.Topology.SourceTarget(id)
		sendsTo, receivesFrom, bounds := "-", "-", "-"
		if found {
			if entry.HasTarget {
				sendsTo = fmt.Sprintf("%d", entry.Target)
				if b, ok := config.Bounds[p2p.SourceTargetPair{Source: id, Target: entry.Target}]; ok {
					bounds = fmt.Sprintf("[%d,%d]", b.Lo, b.Hi)
				}
			}
			if entry.HasSource {
				receivesFrom = fmt.Sprintf("%d", entry.Source)
			}
		}
		table.Row(fmt.Sprintf("%d", d), logical.String(), sendsTo, receivesFrom, bounds)
	}
	fmt.Println(table.Render())
}

func printResults(dsts []*inprocess.Memory, expected []float32, numDevices int) (mismatches int) {
	fmt.Println(titleStyle.Render("Results"))
	table := newPlainTable(true)
	table.Row("Device", "Holds", "Expected", "Check")
	for d := 0; d < numDevices; d++ {
		flat := dsts[d].Float32s()
		uniform := true
		for _, v := range flat {
			if v != flat[0] {
				uniform = false
				break
			}
		}
		check := "ok"
		if !uniform || flat[0] != expected[d] {
			check = "MISMATCH"
			mismatches++
		}
		table.Row(fmt.Sprintf("%d", d), fmt.Sprintf("%g", flat[0]),
			fmt.Sprintf("%g", expected[d]), check)
	}
	fmt.Println(table.Render())
	return
}

// reference replays the gating semantics on the host: which value each device's
// destination should end with, and how many transfers actually ran. The simulator maps
// rank, logical id and global device id one-to-one, which keeps the model a pair of
// flat slices.
func reference(config *p2p.Config, assignment *devices.Assignment, numDevices, iterations int) (final []float32, transfers int) {
	src := make([]float32, numDevices)
	dst := make([]float32, numDevices)
	for d := range src {
		src[d] = float32(d)
	}
	for iter := 0; iter < iterations; iter++ {
		next := slices.Clone(dst)
		for d := 0; d < numDevices; d++ {
			logical := must.M1(assignment.LogicalIDForDevice(devices.GlobalDeviceID(d)))
			id := logical.ID(config.GroupMode)
			entry, found := config.Topology.SourceTarget(id)
			if !found {
				continue
			}
			if !entry.HasSource {
				next[d] = 0
				continue
			}
			if runsAt(config, entry.Source, id, iter) {
				next[d] = src[entry.Source]
				transfers++
			}
		}
		copy(dst, next)
		copy(src, dst)
	}
	return dst, transfers
}

// runsAt mirrors the engine's replay gate for the host reference.
func runsAt(config *p2p.Config, source, target int64, iteration int) bool {
	switch config.Validation {
	case p2p.Invalid:
		return false
	case p2p.Conditional:
		bound, found := config.Bounds[p2p.SourceTargetPair{Source: source, Target: target}]
		if !found {
			return false
		}
		ordinal := int64(iteration)
		return bound.Lo <= ordinal && ordinal <= bound.Hi
	default:
		return true
	}
}

// ringPairs writes the full-ring topology in the compiled attribute syntax.
func ringPairs(numDevices int) string {
	var b strings.Builder
	b.WriteByte('{')
	for d := 0; d < numDevices; d++ {
		if d > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "{%d,%d}", d, (d+1)%numDevices)
	}
	b.WriteByte('}')
	return b.String()
}

func fill(mem *inprocess.Memory, value float32) {
	flat := mem.Float32s()
	for i := range flat {
		flat[i] = value
	}
}
