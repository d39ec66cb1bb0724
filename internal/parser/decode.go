package parser

import (
	"errors"
	"fmt"

	"github.com/Karlsx/go-canproto/internal/codec"
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/rules"
	"github.com/Karlsx/go-canproto/internal/state"
)

// decode runs every var rule and array collector bound to id against
// payload. It returns completion (every data-map entry loaded, in which
// case all loaded flags are cleared so completion edge-triggers) and an
// error flag covering any per-rule fault.
func (e *engine) decode(m *datamap.Map, id uint32, payload []byte) (complete bool, errFlag bool) {
	metrics.IncDecoded()
	for _, r := range e.vars[id] {
		entry, ok := m.Get(r.Name)
		if !ok {
			e.noLink(r.Name)
			errFlag = true
			continue
		}
		if err := codec.Unpack(entry, payload, r.Field); err != nil {
			e.codecFault("decode", r.Name, err)
			errFlag = true
		}
	}
	for _, ar := range e.arrays {
		if _, member := ar.Slot(id); !member {
			continue
		}
		entry, ok := m.Get(ar.Name)
		if !ok {
			e.noLink(ar.Name)
			errFlag = true
			continue
		}
		if entry.Size() < ar.AllMaxLen {
			e.clct.Log(state.CodeArrayParamValue)
			metrics.IncRuntimeError(metrics.ErrSizeOverflow)
			logging.L().Error("array_entry_too_small", "bus", e.bus, "instance", e.name,
				"array", ar.Name, "entry", entry.Size(), "need", ar.AllMaxLen)
			errFlag = true
			continue
		}
		expected := ar.ExpectedID()
		switch ar.Ingest(id, payload, e.frameDataLen(id), entry) {
		case rules.IngestOutOfOrder:
			e.clct.Log(state.CodeRuntimeBadOrder)
			metrics.IncResync()
			logging.L().Warn("array_resync", "bus", e.bus, "instance", e.name,
				"array", ar.Name,
				"got", fmt.Sprintf("0x%08X", id),
				"expected", fmt.Sprintf("0x%08X", expected))
			errFlag = true
		case rules.IngestCompleted:
			logging.L().Debug("array_complete", "array", ar.Name, "bytes", ar.AllMaxLen)
		}
	}
	if m.AllLoaded() {
		m.ClearLoaded()
		metrics.IncCompletion()
		return true, errFlag
	}
	return false, errFlag
}

// noLink reports a rule whose name has no entry in the host data map.
func (e *engine) noLink(name string) {
	e.clct.Log(state.CodeRuntimeNoLink)
	metrics.IncRuntimeError(metrics.ErrNoLink)
	logging.L().Error("no_link", "bus", e.bus, "instance", e.name, "name", name)
}

// codecFault converts a codec sentinel into its counter code.
func (e *engine) codecFault(op, name string, err error) {
	var code state.Code
	var class string
	switch {
	case errors.Is(err, codec.ErrSizeOverflow):
		code, class = state.CodeRuntimeSizeOverflow, metrics.ErrSizeOverflow
	case errors.Is(err, codec.ErrSizeMismatch):
		code, class = state.CodeRuntimeSizeMismatch, metrics.ErrSizeMismatch
	case errors.Is(err, codec.ErrFloatWidth):
		code, class = state.CodeFloatSimplify, metrics.ErrFloatWidth
	case errors.Is(err, codec.ErrDoubleWidth):
		code, class = state.CodeDoubleSimplify, metrics.ErrFloatWidth
	default:
		code, class = state.CodeRuntimeSizeMismatch, metrics.ErrSizeMismatch
	}
	e.clct.Log(code)
	metrics.IncRuntimeError(class)
	logging.L().Error("codec_fault", "bus", e.bus, "instance", e.name,
		"op", op, "var", name, "error", err)
}
