package packet

import "buildnode/pkg/protocol/translate"

// LoggingConfiguration selects which optional evaluation data a node
// forwards to the host loggers.
type LoggingConfiguration struct {
    IncludeEvaluationMetaprojects       bool
    IncludeEvaluationProfiles           bool
    IncludeEvaluationPropertiesAndItems bool
    IncludeTaskInputs                   bool
}

func (c *LoggingConfiguration) Translate(t translate.Translator) {
    t.Bool(&c.IncludeEvaluationMetaprojects)
    t.Bool(&c.IncludeEvaluationProfiles)
    t.Bool(&c.IncludeEvaluationPropertiesAndItems)
    t.Bool(&c.IncludeTaskInputs)
}

// Verbosity of a forwarding logger.
type Verbosity uint8

const (
    VerbosityQuiet Verbosity = iota
    VerbosityMinimal
    VerbosityNormal
    VerbosityDetailed
    VerbosityDiagnostic
)

// LoggerDescription names a logger the node should forward events to.
type LoggerDescription struct {
    Name       string
    Parameters string
    Verbosity  Verbosity
}

func (d *LoggerDescription) Translate(t translate.Translator) {
    t.String(&d.Name)
    t.String(&d.Parameters)
    translate.Enum(t, &d.Verbosity)
}

// NodeConfiguration is the first packet a host sends after a successful
// handshake.
type NodeConfiguration struct {
    NodeID           int32
    MaxNodeCount     int32
    EnableNodeReuse  bool
    LowPriority      bool
    ToolsetVersion   string
    WorkingDirectory string
    Environment      map[string]string
    GlobalProperties map[string]string
    Loggers          []LoggerDescription
    Logging          *LoggingConfiguration
}

func (*NodeConfiguration) Type() Type { return TypeNodeConfiguration }

func (c *NodeConfiguration) Translate(t translate.Translator) {
    t.Int32(&c.NodeID)
    t.Int32(&c.MaxNodeCount)
    t.Bool(&c.EnableNodeReuse)
    t.Bool(&c.LowPriority)
    t.String(&c.ToolsetVersion)
    t.String(&c.WorkingDirectory)
    t.StringMap(&c.Environment)
    t.StringMap(&c.GlobalProperties)
    translate.Slice(t, &c.Loggers)
    translate.Optional(t, &c.Logging)
}

// Clone returns a copy that shares no mutable state with c.
func (c *NodeConfiguration) Clone() *NodeConfiguration {
    out := *c
    out.Environment = cloneMap(c.Environment)
    out.GlobalProperties = cloneMap(c.GlobalProperties)
    out.Loggers = append([]LoggerDescription(nil), c.Loggers...)
    if c.Logging != nil {
        l := *c.Logging
        out.Logging = &l
    }
    return &out
}

func cloneMap(m map[string]string) map[string]string {
    if m == nil { return nil }
    out := make(map[string]string, len(m))
    for k, v := range m { out[k] = v }
    return out
}
