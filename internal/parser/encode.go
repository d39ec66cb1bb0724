package parser

import (
	"fmt"
	"sort"

	"github.com/Karlsx/go-canproto/internal/codec"
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/state"
)

// encodeCmd fills data (pre-zeroed, one frame payload wide) with the cmd's
// ctrl bytes followed by the caller payload. Overflow packs what fits and
// reports failure without aborting, preserving the prototype-frame
// semantics commands rely on.
func (e *engine) encodeCmd(name string, payload, data []byte) (uint32, bool) {
	r, ok := e.cmds[name]
	if !ok {
		e.noLink(name)
		return 0, false
	}
	copy(data[:r.CtrlLen], r.CtrlData)
	ok = true
	if r.CtrlLen+len(payload) > len(data) {
		e.clct.Log(state.CodeArrayParamValue)
		metrics.IncRuntimeError(metrics.ErrSizeMismatch)
		logging.L().Error("cmd_payload_overflow", "bus", e.bus, "instance", e.name,
			"cmd", name, "ctrl_len", r.CtrlLen, "payload", len(payload), "data_len", len(data))
		ok = false
	}
	copy(data[r.CtrlLen:], payload)
	return r.FrameID, ok
}

// encodeAll packs one frame per var-rule frame id and the declared frame
// walk of every array, handing each payload to send. It returns true iff
// no rule or transmission faulted.
func (e *engine) encodeAll(m *datamap.Map, send func(id uint32, data []byte) error) bool {
	errFlag := false
	for _, id := range e.sortedVarIDs() {
		data := make([]byte, e.frameDataLen(id))
		for _, r := range e.vars[id] {
			entry, ok := m.Get(r.Name)
			if !ok {
				e.noLink(r.Name)
				errFlag = true
				continue
			}
			if err := codec.Pack(data, entry, r.Field); err != nil {
				e.codecFault("encode", r.Name, err)
				errFlag = true
			}
		}
		if !e.transmit(send, id, data) {
			errFlag = true
		}
	}
	for _, ar := range e.arrays {
		entry, ok := m.Get(ar.Name)
		if !ok {
			e.noLink(ar.Name)
			errFlag = true
			continue
		}
		if ar.AllMaxLen != entry.Size() {
			e.clct.Log(state.CodeRuntimeSizeMismatch)
			metrics.IncRuntimeError(metrics.ErrSizeMismatch)
			logging.L().Error("array_size_mismatch", "bus", e.bus, "instance", e.name,
				"array", ar.Name, "entry", entry.Size(), "declared", ar.AllMaxLen)
			errFlag = true
			// keep sending: partial frames carry what the entry holds
		}
		src := entry.Bytes()
		cursor := 0
		for _, id := range ar.Frames() {
			flen := e.frameDataLen(id)
			data := make([]byte, flen)
			if cursor < len(src) {
				copy(data, src[cursor:])
			}
			cursor += flen
			if !e.transmit(send, id, data) {
				errFlag = true
			}
		}
	}
	return !errFlag
}

// transmit hands a packed payload to the bus callback and accounts the
// outcome under the facade's send fault code.
func (e *engine) transmit(send func(id uint32, data []byte) error, id uint32, data []byte) bool {
	if err := send(id, data); err != nil {
		e.clct.Log(e.sendCode)
		metrics.IncRuntimeError(metrics.ErrSend)
		logging.L().Error("send_failed", "bus", e.bus, "instance", e.name,
			"frame_id", fmt.Sprintf("0x%08X", id), "error", err)
		return false
	}
	metrics.IncEncoded()
	return true
}

// sortedVarIDs returns the var-rule frame ids in ascending order so encode
// walks frames deterministically.
func (e *engine) sortedVarIDs() []uint32 {
	ids := make([]uint32, 0, len(e.vars))
	for id := range e.vars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
