// Copyright (c) 2024 Neomantra Corp

package nsefeed_test

import (
	"encoding/binary"
	"testing"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

func buildIndexRecord(token uint32) []byte {
	buf := make([]byte, nsefeed.IndexSnapshotMsg_Size)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], 2)
	le.PutUint32(buf[2:6], 1720000000)
	le.PutUint16(buf[6:8], nsefeed.IndexSnapshotMsg_Size)
	p := buf[8:]
	le.PutUint32(p[0:4], token)
	le.PutUint32(p[4:8], 2200000)
	le.PutUint32(p[8:12], 2210000)
	le.PutUint32(p[12:16], 2215000)
	le.PutUint32(p[16:20], 2195000)
	le.PutUint32(p[20:24], 45)
	le.PutUint32(p[24:28], 2200500)
	le.PutUint32(p[28:32], 2210500)
	le.PutUint32(p[32:36], 2199000)
	le.PutUint32(p[36:40], 2209000)
	le.PutUint32(p[40:44], 2210800)
	return buf
}

func TestDecodeIndex(t *testing.T) {
	raw := buildIndexRecord(9999)
	records, err := nsefeed.DecodeIndex(gzipBytes(t, raw), nil)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.IndexToken != 9999 || r.CurrentIndexValue != 2210000 || r.IndicativeCloseIndexValue != 2210800 {
		t.Fatalf("field decode mismatch: %+v", r)
	}
}
