package trace

import "go.uber.org/zap"

// Zap logs every event at debug level.
type Zap struct {
	log *zap.Logger
}

// NewZap creates a recorder writing to log.
func NewZap(log *zap.Logger) *Zap {
	return &Zap{log: log.Named("trace")}
}

func (z *Zap) Record(ev Event) {
	if ce := z.log.Check(zap.DebugLevel, string(ev.Kind)); ce != nil {
		ce.Write(
			zap.Uint64("seq", ev.Seq),
			zap.Int("depth", ev.Depth),
			zap.Int("src", ev.Src),
			zap.Uint8("src_port", ev.SrcPort),
			zap.Int("dst", ev.Dst),
			zap.Uint8("dst_port", ev.DstPort),
			zap.Uint8("value", ev.Value),
			zap.Uint16("vector", ev.Vector),
			zap.String("detail", ev.Detail),
		)
	}
}
