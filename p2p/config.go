package p2p

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gomlx/collectives/devices"
	"github.com/gomlx/collectives/types"
	"github.com/gomlx/collectives/types/shapes"
)

// ValidationKind selects the replay gate of an engine: whether an invocation whose
// device has a peer actually communicates.
type ValidationKind int

const (
	// Valid communicates on every invocation. The default.
	Valid ValidationKind = iota

	// Invalid never communicates: senders stay silent and receivers leave their
	// destination untouched. Only an affirmatively sourceless receiver zero-fills,
	// and that is independent of the gate.
	Invalid

	// Conditional communicates on the invocations whose per-context ordinal falls in
	// the configured Bounds for the resolved pair.
	Conditional
)

// String implements fmt.Stringer.
func (k ValidationKind) String() string {
	switch k {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Conditional:
		return "conditional"
	}
	return "unknown"
}

// Bound is an inclusive range of invocation ordinals.
type Bound struct {
	Lo, Hi int64
}

// Bounds maps each directed edge of the topology to the invocation ordinals on which it
// carries a transfer. Only Conditional configurations have them.
type Bounds map[SourceTargetPair]Bound

// AsyncStreamKind says which of the pipelined point-to-point stream channels the
// executor should run an instruction on. The engine only records it; picking the actual
// stream is the executor's business.
type AsyncStreamKind int

const (
	// P2P0 is the default point-to-point channel.
	P2P0 AsyncStreamKind = iota

	// P2P1 is the second channel, used by pipelined schedules to overlap two transfers.
	P2P1
)

// String implements fmt.Stringer.
func (k AsyncStreamKind) String() string {
	if k == P2P1 {
		return "p2p1"
	}
	return "p2p0"
}

// Config is the immutable configuration of one send or receive instruction: who talks
// to whom (Topology), what flows (OperandShape) and when the transfer really happens
// (Validation, Bounds). Build it with NewConfig or ConfigFromAttributes and share it
// freely, nothing mutates it afterwards.
type Config struct {
	// Name labels the instruction in logs and errors. Optional.
	Name string

	// GroupMode says whether logical ids are replica ids or partition ids.
	GroupMode devices.GroupMode

	// OperandShape is the shape of the one operand flowing through the instruction.
	OperandShape shapes.Shape

	// ParticipantCount is the number of logical devices under GroupMode.
	ParticipantCount int64

	// Topology resolves each participant's peers.
	Topology SourceTargetMap

	// Validation selects the replay gate, Bounds parameterizes it when Conditional.
	Validation ValidationKind
	Bounds     Bounds

	// StreamKind is the pipelined channel the executor should use.
	StreamKind AsyncStreamKind
}

type configOptions struct {
	name       string
	validation ValidationKind
	bounds     [][2]int64
	streamKind AsyncStreamKind
}

// ConfigOption adjusts NewConfig, see WithName, WithValidation, WithConditionalBounds
// and WithStreamKind.
type ConfigOption func(*configOptions)

// WithName labels the instruction in logs and errors, e.g. "collective-permute.1".
func WithName(name string) ConfigOption {
	return func(o *configOptions) { o.name = name }
}

// WithValidation selects the replay gate kind. Conditional additionally needs
// WithConditionalBounds, which implies it.
func WithValidation(kind ValidationKind) ConfigOption {
	return func(o *configOptions) { o.validation = kind }
}

// WithConditionalBounds sets the inclusive invocation-ordinal ranges gating each pair,
// in the same order the pairs were given to NewConfig, and implies
// WithValidation(Conditional).
func WithConditionalBounds(bounds [][2]int64) ConfigOption {
	return func(o *configOptions) {
		o.validation = Conditional
		o.bounds = bounds
	}
}

// WithStreamKind records which pipelined channel the executor should run the
// instruction on.
func WithStreamKind(kind AsyncStreamKind) ConfigOption {
	return func(o *configOptions) { o.streamKind = kind }
}

// NewConfig builds and validates the configuration of one send or receive instruction.
//
// pairs are the directed edges of the topology over logical device ids, each id in
// [0, participantCount); an id may appear at most once as a source and once as a
// target. operandShape is the shape of the transferred operand.
//
// All errors match ErrConfig.
func NewConfig(groupMode devices.GroupMode, operandShape shapes.Shape, participantCount int64, pairs [][2]int64, opts ...ConfigOption) (*Config, error) {
	if !operandShape.Ok() {
		return nil, errors.Wrapf(ErrConfig, "invalid operand shape")
	}
	if participantCount <= 0 {
		return nil, errors.Wrapf(ErrConfig, "participant count must be positive, got %d", participantCount)
	}
	sources := types.MakeSet[int64](len(pairs))
	targets := types.MakeSet[int64](len(pairs))
	for _, pair := range pairs {
		for _, id := range pair {
			if id < 0 || id >= participantCount {
				return nil, errors.Wrapf(ErrConfig, "id %d in pair {%d,%d} outside the %d participants of mode %s",
					id, pair[0], pair[1], participantCount, groupMode)
			}
		}
		if sources.Has(pair[0]) {
			return nil, errors.Wrapf(ErrConfig, "id %d is the source of more than one pair", pair[0])
		}
		if targets.Has(pair[1]) {
			return nil, errors.Wrapf(ErrConfig, "id %d is the target of more than one pair", pair[1])
		}
		sources.Insert(pair[0])
		targets.Insert(pair[1])
	}

	var options configOptions
	for _, opt := range opts {
		opt(&options)
	}
	config := &Config{
		Name:             options.name,
		GroupMode:        groupMode,
		OperandShape:     operandShape,
		ParticipantCount: participantCount,
		Topology:         NewSourceTargetMap(pairs),
		Validation:       options.validation,
		StreamKind:       options.streamKind,
	}
	if options.bounds != nil && options.validation != Conditional {
		return nil, errors.Wrapf(ErrConfig, "conditional bounds given but validation is %s", options.validation)
	}
	if options.validation == Conditional {
		if len(options.bounds) != len(pairs) {
			return nil, errors.Wrapf(ErrConfig, "%d conditional bounds for %d pairs, they pair up positionally",
				len(options.bounds), len(pairs))
		}
		config.Bounds = make(Bounds, len(pairs))
		for i, pair := range pairs {
			config.Bounds[SourceTargetPair{Source: pair[0], Target: pair[1]}] =
				Bound{Lo: options.bounds[i][0], Hi: options.bounds[i][1]}
		}
	}
	return config, nil
}

// Compiled attribute names, as the compiler writes them on send/recv instructions.
const (
	// AttrSourceTargetPairs holds the topology edges, e.g. "{{0,1},{1,2}}".
	AttrSourceTargetPairs = "_xla_send_recv_source_target_pairs"

	// AttrValidation holds the replay gate: absent for Valid, the literal "invalid"
	// for Invalid, or one inclusive bound per pair, e.g. "{{0,2},{1,3}}", for
	// Conditional.
	AttrValidation = "_xla_send_recv_validation"

	// AttrPipeline holds "1" when the instruction runs on the second pipelined
	// channel.
	AttrPipeline = "_xla_send_recv_pipeline"
)

// ConfigFromAttributes builds a Config from the frontend attributes of a compiled send
// or receive instruction. The participant count is replicaCount or partitionCount,
// picked by groupMode.
//
// All errors match ErrConfig.
func ConfigFromAttributes(groupMode devices.GroupMode, operandShape shapes.Shape, replicaCount, partitionCount int64, attrs map[string]string, opts ...ConfigOption) (*Config, error) {
	participantCount := replicaCount
	if groupMode == devices.CrossPartition {
		participantCount = partitionCount
	}
	pairsAttr, found := attrs[AttrSourceTargetPairs]
	if !found {
		return nil, errors.Wrapf(ErrConfig, "attribute %s missing", AttrSourceTargetPairs)
	}
	pairs, err := parseIntPairs(pairsAttr)
	if err != nil {
		return nil, errors.WithMessagef(err, "attribute %s", AttrSourceTargetPairs)
	}
	if validationAttr, found := attrs[AttrValidation]; found {
		if validationAttr == "invalid" {
			opts = append(opts, WithValidation(Invalid))
		} else {
			bounds, err := parseIntPairs(validationAttr)
			if err != nil {
				return nil, errors.WithMessagef(err, "attribute %s", AttrValidation)
			}
			opts = append(opts, WithConditionalBounds(bounds))
		}
	}
	if attrs[AttrPipeline] == "1" {
		opts = append(opts, WithStreamKind(P2P1))
	}
	return NewConfig(groupMode, operandShape, participantCount, pairs, opts...)
}

// parseIntPairs parses the brace-list syntax of compiled attributes, e.g.
// "{{0,1},{1,2}}". Errors match ErrConfig.
func parseIntPairs(value string) ([][2]int64, error) {
	s := strings.TrimSpace(value)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, errors.Wrapf(ErrConfig, "malformed pair list %q, want {{a,b},...}", value)
	}
	s = s[1 : len(s)-1]
	var pairs [][2]int64
	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return pairs, nil
		}
		if s[0] != '{' {
			return nil, errors.Wrapf(ErrConfig, "malformed pair list %q, want {{a,b},...}", value)
		}
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return nil, errors.Wrapf(ErrConfig, "malformed pair list %q: unterminated pair", value)
		}
		fields := strings.Split(s[1:end], ",")
		if len(fields) != 2 {
			return nil, errors.Wrapf(ErrConfig, "malformed pair list %q: %q is not a pair", value, s[:end+1])
		}
		var pair [2]int64
		for i, field := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrConfig, "malformed pair list %q: %q is not an integer", value, field)
			}
			pair[i] = v
		}
		pairs = append(pairs, pair)
		s = strings.TrimSpace(s[end+1:])
		if s == "" {
			return pairs, nil
		}
		if s[0] != ',' {
			return nil, errors.Wrapf(ErrConfig, "malformed pair list %q: missing comma between pairs", value)
		}
		s = s[1:]
	}
}
