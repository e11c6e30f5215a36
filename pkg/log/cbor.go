package log

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Session files are a plain sequence of CBOR records keyed by the integer
// tags on Event. Encoding is canonical so identical events produce identical
// bytes, which lets pulse-log filter and re-emit records without drift.
var (
	recordEnc = mustRecordEncMode()
	recordDec = mustRecordDecMode()
)

func mustRecordEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("pulse diagnostics: record encoder: %v", err))
	}
	return em
}

// Error details decode back as string-keyed maps, matching how they were
// sanitized before encoding.
func mustRecordDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("pulse diagnostics: record decoder: %v", err))
	}
	return dm
}

// EncodeEvent returns the session-file record for event.
func EncodeEvent(event Event) ([]byte, error) {
	return recordEnc.Marshal(event)
}

// DecodeEvent parses a single session-file record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := recordDec.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode diagnostics record: %w", err)
	}
	return event, nil
}

func newRecordDecoder(r io.Reader) *cbor.Decoder {
	return recordDec.NewDecoder(r)
}
