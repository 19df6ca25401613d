package deriv

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/comm"
)

// keyMsg and valMsg are the gob payloads of the merge exchange.
type keyMsg struct {
	Keys []Key
}

type valEntry struct {
	Key   Key
	Block *Block
}

type valMsg struct {
	Vals []valEntry
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding merge payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeKeys(raw []byte) ([]Key, error) {
	var msg keyMsg
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding merge key list: %w", err)
	}
	return msg.Keys, nil
}

func decodeVals(raw []byte) ([]valEntry, error) {
	var msg valMsg
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding merge value list: %w", err)
	}
	return msg.Vals, nil
}

// Combined reconciles a Jacobian that is only partially populated on this
// process into the process-wide result. With no communicator it returns the
// input unchanged.
//
// Zero-sized blocks mark pairs this process needs; the needed lists are
// exchanged and unioned, owners are exchanged, and for each needed pair the
// contribution of the lowest-ranked owner wins. The selected values are then
// exchanged and installed everywhere, leaving already-owned entries
// untouched. Every process returns holding an identical, complete Jacobian
// for every pair any process needed; a pair no process owns stays a
// zero-sized block, which is the caller's to interpret.
func Combined(j Jacobian, c comm.Communicator) (Jacobian, error) {
	if c == nil {
		return j, nil
	}

	var needTups, hasTups []Key
	for _, key := range j.Keys() {
		if j[key].Empty() {
			needTups = append(needTups, key)
		} else {
			hasTups = append(hasTups, key)
		}
	}

	needPayload, err := encode(keyMsg{Keys: needTups})
	if err != nil {
		return nil, err
	}
	distNeed, err := c.Allgather(needPayload)
	if err != nil {
		return nil, err
	}

	needed := make(map[Key]bool)
	for _, raw := range distNeed {
		keys, err := decodeKeys(raw)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			needed[k] = true
		}
	}
	if len(needed) == 0 {
		// Nobody needs any entries; no value exchange required.
		return j, nil
	}

	hasPayload, err := encode(keyMsg{Keys: hasTups})
	if err != nil {
		return nil, err
	}
	distHas, err := c.Allgather(hasPayload)
	if err != nil {
		return nil, err
	}

	// First writer wins: walk ranks in order and keep only the first owner
	// of each needed pair. The tie-break is deterministic; no two ranks are
	// expected to own the same previously-missing entry in practice.
	found := make(map[Key]bool)
	var ownedVals []valEntry
	for rank, raw := range distHas {
		keys, err := decodeKeys(raw)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !needed[k] || found[k] {
				continue
			}
			found[k] = true
			if rank == c.Rank() {
				ownedVals = append(ownedVals, valEntry{Key: k, Block: j[k]})
			}
		}
	}

	valPayload, err := encode(valMsg{Vals: ownedVals})
	if err != nil {
		return nil, err
	}
	distVals, err := c.Allgather(valPayload)
	if err != nil {
		return nil, err
	}

	for rank, raw := range distVals {
		if rank == c.Rank() {
			continue
		}
		vals, err := decodeVals(raw)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if existing, ok := j[v.Key]; ok && !existing.Empty() {
				// Already owned locally; the exchange never clobbers it.
				continue
			}
			j[v.Key] = v.Block
		}
	}

	return j, nil
}
