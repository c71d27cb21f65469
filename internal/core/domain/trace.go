package domain

// TraceEventKind is the type of an instrumentation event emitted while evaluating.
type TraceEventKind string

const (
	// TraceCacheRead is emitted when a memoized value is read from a cache.
	TraceCacheRead TraceEventKind = "CACHE_READ"
	// TraceComputeBegin is emitted when an equation starts computing.
	TraceComputeBegin TraceEventKind = "COMPUTE_BEGIN"
	// TraceComputeEnd is emitted when an equation finishes computing.
	TraceComputeEnd TraceEventKind = "COMPUTE_END"
	// TraceCircularStart opens a fixed-point evaluation bracket.
	TraceCircularStart TraceEventKind = "CIRCULAR_CASE1_START"
	// TraceCircularReturn closes a fixed-point evaluation bracket.
	TraceCircularReturn TraceEventKind = "CIRCULAR_CASE1_RETURN"
)

// TraceEvent is one instrumentation event. Value is set on CACHE_READ, COMPUTE_END and
// CIRCULAR_CASE1_RETURN when values are captured.
type TraceEvent struct {
	Kind  TraceEventKind  `json:"kind"`
	Prop  LocatedProperty `json:"prop"`
	Value *EvaluatedValue `json:"value,omitempty"`
}

// Evaluation is the result of evaluating a located property.
type Evaluation struct {
	Value EvaluatedValue
	// Unattached is set when the result references a node outside the object graph.
	Unattached bool
}

// Recomputation is the result of invoking a property's equation directly.
type Recomputation struct {
	Value EvaluatedValue
	// AfterReset is set when the property's cache was reset before recomputing.
	AfterReset bool
}
