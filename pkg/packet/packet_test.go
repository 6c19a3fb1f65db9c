package packet

import (
    "errors"
    "testing"

    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "github.com/google/go-cmp/cmp"
    "github.com/google/go-cmp/cmp/cmpopts"
    "pgregory.net/rapid"
)

func genConfiguration(t *rapid.T) *NodeConfiguration {
    c := &NodeConfiguration{
        NodeID:           rapid.Int32Range(1, 1024).Draw(t, "id"),
        MaxNodeCount:     rapid.Int32Range(1, 64).Draw(t, "max"),
        EnableNodeReuse:  rapid.Bool().Draw(t, "reuse"),
        LowPriority:      rapid.Bool().Draw(t, "low"),
        ToolsetVersion:   rapid.String().Draw(t, "toolset"),
        WorkingDirectory: rapid.String().Draw(t, "wd"),
        Environment:      rapid.MapOf(rapid.String(), rapid.String()).Draw(t, "env"),
        GlobalProperties: rapid.MapOf(rapid.StringMatching(`[A-Za-z]{1,8}`), rapid.String()).Draw(t, "props"),
        Loggers: rapid.SliceOf(rapid.Custom(func(t *rapid.T) LoggerDescription {
            return LoggerDescription{
                Name:       rapid.String().Draw(t, "name"),
                Parameters: rapid.String().Draw(t, "params"),
                Verbosity:  Verbosity(rapid.Uint8Range(0, uint8(VerbosityDiagnostic)).Draw(t, "verbosity")),
            }
        })).Draw(t, "loggers"),
    }
    if rapid.Bool().Draw(t, "has-logging") {
        c.Logging = &LoggingConfiguration{
            IncludeEvaluationMetaprojects:       rapid.Bool().Draw(t, "meta"),
            IncludeEvaluationProfiles:           rapid.Bool().Draw(t, "profiles"),
            IncludeEvaluationPropertiesAndItems: rapid.Bool().Draw(t, "props-items"),
            IncludeTaskInputs:                   rapid.Bool().Draw(t, "inputs"),
        }
    }
    return c
}

func genPacket(t *rapid.T) Packet {
    switch rapid.IntRange(0, 4).Draw(t, "kind") {
    case 0:
        return genConfiguration(t)
    case 1:
        return &NodeBuildComplete{PrepareForReuse: rapid.Bool().Draw(t, "reuse")}
    case 2:
        return &NodeShutdown{Reason: ShutdownReason(rapid.Uint8Range(0, 3).Draw(t, "reason")), Error: rapid.String().Draw(t, "err")}
    case 3:
        return &TaskCancelled{}
    default:
        return &Payload{
            Kind:     rapid.String().Draw(t, "kind"),
            Sequence: rapid.Int64().Draw(t, "seq"),
            Format:   protocol.Format(rapid.Uint8Range(1, 3).Draw(t, "format")),
            Body:     rapid.SliceOf(rapid.Byte()).Draw(t, "body"),
        }
    }
}

func TestPacketRoundTripProperty(t *testing.T) {
    reg := DefaultRegistry()
    rapid.Check(t, func(rt *rapid.T) {
        in := genPacket(rt)
        frame, err := EncodeFrame(in)
        if err != nil { rt.Fatalf("encode: %v", err) }
        if Type(frame[0]) != in.Type() { rt.Fatalf("frame tag %x, want %s", frame[0], in.Type()) }
        out, err := reg.CreateFromBytes(in.Type(), frame[protocol.FrameHeaderSize:])
        if err != nil { rt.Fatalf("decode: %v", err) }
        if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" {
            rt.Fatalf("round trip mismatch (-in +out):\n%s", diff)
        }
    })
}

func TestConfigurationEdgeValues(t *testing.T) {
    reg := DefaultRegistry()
    big := make([]LoggerDescription, 5000)
    for i := range big { big[i] = LoggerDescription{Name: "l", Verbosity: VerbosityDetailed} }
    for name, in := range map[string]*NodeConfiguration{
        "zero":  {},
        "empty": {Environment: map[string]string{}, Loggers: []LoggerDescription{}, Logging: &LoggingConfiguration{}},
        "large": {NodeID: 3, Loggers: big, Environment: map[string]string{"": "", "PATH": "/bin"}},
    } {
        payload, err := Marshal(in)
        if err != nil { t.Fatalf("%s: marshal: %v", name, err) }
        out, err := reg.CreateFromBytes(TypeNodeConfiguration, payload)
        if err != nil { t.Fatalf("%s: decode: %v", name, err) }
        if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" { t.Fatalf("%s: mismatch:\n%s", name, diff) }
    }
}

func TestTaskCancelledIsEmpty(t *testing.T) {
    payload, err := Marshal(&TaskCancelled{})
    if err != nil { t.Fatalf("marshal: %v", err) }
    if len(payload) != 0 { t.Fatalf("want empty payload, got %d bytes", len(payload)) }
}

func TestUnknownTypeIsFraming(t *testing.T) {
    _, err := DefaultRegistry().CreateFromBytes(Type(0x7e), nil)
    if !protocol.IsFraming(err) || !errors.Is(err, ErrUnknownType) { t.Fatalf("want framing/unknown type, got %v", err) }
}

func TestTrailingAndTruncatedPayloads(t *testing.T) {
    reg := DefaultRegistry()
    payload, _ := Marshal(&NodeBuildComplete{PrepareForReuse: true})
    if _, err := reg.CreateFromBytes(TypeNodeBuildComplete, append(payload, 1)); !protocol.IsFraming(err) {
        t.Fatalf("trailing bytes accepted: %v", err)
    }
    if _, err := reg.CreateFromBytes(TypeNodeBuildComplete, nil); !protocol.IsFraming(err) {
        t.Fatalf("truncated payload accepted: %v", err)
    }
    if _, err := reg.CreateFromBytes(TypeNodeBuildComplete, []byte{7}); !protocol.IsFraming(err) {
        t.Fatalf("bad bool accepted: %v", err)
    }
}

func TestRegistryRejectsDuplicates(t *testing.T) {
    r := DefaultRegistry()
    if err := r.Register(TypePayload, func() Packet { return &Payload{} }); err == nil { t.Fatalf("duplicate accepted") }
    if err := r.Register(TypeUnknown, func() Packet { return &Payload{} }); err == nil { t.Fatalf("reserved tag accepted") }
    if got := r.Types(); len(got) != 5 || got[0] != TypeNodeConfiguration || got[4] != TypePayload {
        t.Fatalf("types: %v", got)
    }
}

func TestPayloadCodecs(t *testing.T) {
    reg := codec.MustRegistry()
    type task struct {
        Target string `json:"target" cbor:"target"`
        Jobs   int    `json:"jobs" cbor:"jobs"`
    }
    for _, f := range []protocol.Format{protocol.FormatJSON, protocol.FormatCBOR} {
        p, err := NewPayload(reg, "build", 7, f, task{Target: "Build", Jobs: 4})
        if err != nil { t.Fatalf("%s: new: %v", f, err) }
        var out task
        if err := p.Decode(reg, &out); err != nil { t.Fatalf("%s: decode: %v", f, err) }
        if out.Target != "Build" || out.Jobs != 4 { t.Fatalf("%s: mismatch %+v", f, out) }
    }
    if _, err := NewPayload(reg, "x", 1, protocol.FormatProto, task{}); err == nil { t.Fatalf("non-proto value accepted") }
}

func TestConfigurationClone(t *testing.T) {
    in := &NodeConfiguration{Environment: map[string]string{"A": "1"}, Logging: &LoggingConfiguration{IncludeTaskInputs: true}}
    out := in.Clone()
    out.Environment["A"] = "2"
    out.Logging.IncludeTaskInputs = false
    if in.Environment["A"] != "1" || !in.Logging.IncludeTaskInputs { t.Fatalf("clone shares state") }
}
