package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tolelom/tolmarket/core"
)

// slotSet is a dense list plus a reverse index, stored in the StateDB under
// one prefix:
//
//	<prefix>n            number of live entries
//	<prefix>i:<position> entry at position (zero-padded, 0-based)
//	<prefix>k:<key>      position of key; absent when key is not in the set
//
// Removal is O(1): the last entry moves into the freed position.
type slotSet struct {
	s      *StateDB
	prefix string
}

type slotEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (ss slotSet) countKey() string           { return ss.prefix + "n" }
func (ss slotSet) entryKey(pos uint64) string { return fmt.Sprintf("%si:%020d", ss.prefix, pos) }
func (ss slotSet) indexKey(key string) string { return ss.prefix + "k:" + key }

func (ss slotSet) len() (uint64, error) {
	data, err := ss.s.get(ss.countKey())
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (ss slotSet) setLen(n uint64) {
	ss.s.set(ss.countKey(), []byte(strconv.FormatUint(n, 10)))
}

// position returns the list position of key and whether key is present.
func (ss slotSet) position(key string) (uint64, bool, error) {
	data, err := ss.s.get(ss.indexKey(key))
	if errors.Is(err, core.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pos, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("slot index %q: %w", key, err)
	}
	return pos, true, nil
}

func (ss slotSet) setPosition(key string, pos uint64) {
	ss.s.set(ss.indexKey(key), []byte(strconv.FormatUint(pos, 10)))
}

func (ss slotSet) entry(pos uint64) (*slotEntry, error) {
	data, err := ss.s.get(ss.entryKey(pos))
	if err != nil {
		return nil, err
	}
	var e slotEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (ss slotSet) putEntry(pos uint64, e *slotEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ss.s.set(ss.entryKey(pos), data)
	return nil
}

// get decodes the value stored for key into v; core.ErrNotFound if absent.
func (ss slotSet) get(key string, v any) error {
	pos, ok, err := ss.position(key)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotFound
	}
	e, err := ss.entry(pos)
	if err != nil {
		return err
	}
	return json.Unmarshal(e.Value, v)
}

// at decodes the value at list position i into v; core.ErrNotFound if
// i is past the end.
func (ss slotSet) at(i uint64, v any) error {
	n, err := ss.len()
	if err != nil {
		return err
	}
	if i >= n {
		return core.ErrNotFound
	}
	e, err := ss.entry(i)
	if err != nil {
		return err
	}
	return json.Unmarshal(e.Value, v)
}

// put updates key in place, or appends it when absent.
func (ss slotSet) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := &slotEntry{Key: key, Value: raw}

	pos, ok, err := ss.position(key)
	if err != nil {
		return err
	}
	if ok {
		return ss.putEntry(pos, e)
	}
	n, err := ss.len()
	if err != nil {
		return err
	}
	if err := ss.putEntry(n, e); err != nil {
		return err
	}
	ss.setPosition(key, n)
	ss.setLen(n + 1)
	return nil
}

// remove swap-removes key; core.ErrNotFound if absent.
func (ss slotSet) remove(key string) error {
	pos, ok, err := ss.position(key)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotFound
	}
	n, err := ss.len()
	if err != nil {
		return err
	}
	last := n - 1
	if pos != last {
		moved, err := ss.entry(last)
		if err != nil {
			return err
		}
		if err := ss.putEntry(pos, moved); err != nil {
			return err
		}
		ss.setPosition(moved.Key, pos)
	}
	ss.s.del(ss.entryKey(last))
	ss.s.del(ss.indexKey(key))
	ss.setLen(last)
	return nil
}
