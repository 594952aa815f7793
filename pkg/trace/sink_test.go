// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trace

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordOptionalFieldOmission(t *testing.T) {
	require := require.New(t)

	data, err := json.Marshal(&Record{
		RequestID: "req-1",
		Node:      NodeADX,
		Action:    ActionQualityScore,
		Decision:  DecisionPass,
		Reason:    ReasonQualityScored,
	})
	require.NoError(err)

	// Unset optional fields vanish from the wire form entirely.
	require.NotContains(string(data), "pCTR")
	require.NotContains(string(data), "saved_amount")
	require.NotContains(string(data), "null")

	// An explicit zero is still present: absent and zero are different.
	data, err = json.Marshal(&Record{RequestID: "req-1", SavedAmount: F(0)})
	require.NoError(err)
	require.Contains(string(data), `"saved_amount":0`)
}

func TestWriterSinkAppendsJSONLines(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	sink.Write(&Record{RequestID: "req-1", Action: ActionBlacklistCheck, Decision: DecisionPass})
	sink.Write(&Record{RequestID: "req-2", Action: ActionAuctionResult, Decision: DecisionPass, ECPM: F(0.6)})
	require.NoError(sink.Close())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(lines, 2)

	var rec Record
	require.NoError(json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal("req-1", rec.RequestID)
	require.Equal(ActionBlacklistCheck, rec.Action)
	require.False(rec.Timestamp.IsZero())

	require.NoError(json.Unmarshal([]byte(lines[1]), &rec))
	require.NotNil(rec.ECPM)
	require.Equal(0.6, *rec.ECPM)
}

func TestSinkSubscribeFanOut(t *testing.T) {
	require := require.New(t)
	sink := NewWriterSink(&bytes.Buffer{})

	a := sink.Subscribe()
	b := sink.Subscribe()

	sink.Write(&Record{RequestID: "req-1", Action: ActionFinalDecision})

	require.Equal("req-1", (<-a).RequestID)
	require.Equal("req-1", (<-b).RequestID)

	sink.Unsubscribe(a)
	_, open := <-a
	require.False(open)

	// The remaining subscriber still receives.
	sink.Write(&Record{RequestID: "req-2", Action: ActionFinalDecision})
	require.Equal("req-2", (<-b).RequestID)

	// Close drains and closes the rest.
	require.NoError(sink.Close())
	_, open = <-b
	require.False(open)
}

func TestSinkSlowSubscriberDropsRecords(t *testing.T) {
	require := require.New(t)
	sink := NewWriterSink(&bytes.Buffer{})
	ch := sink.Subscribe()

	// Overflow the buffer; writes must not block.
	for i := 0; i < 300; i++ {
		sink.Write(&Record{RequestID: "req", Action: ActionBidSubmitted})
	}
	require.Len(ch, 256)
	require.NoError(sink.Close())
}

func TestMemorySinkByAction(t *testing.T) {
	require := require.New(t)
	sink := NewMemorySink()

	sink.Write(&Record{RequestID: "req-1", Action: ActionBlacklistCheck})
	sink.Write(&Record{RequestID: "req-1", Action: ActionAuctionResult})
	sink.Write(&Record{RequestID: "req-2", Action: ActionAuctionResult})

	require.Len(sink.Records(), 3)
	require.Len(sink.ByAction(ActionAuctionResult), 2)
	require.Empty(sink.ByAction(ActionDistribution))
}
