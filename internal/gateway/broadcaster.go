package gateway

import (
	"strconv"
	"time"
)

const replayDepth = 500

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients. A non-zero
// srcTS records the source-to-socket latency. Slow clients lose the message
// rather than block the fan-out.
func (b *Broadcaster) Broadcast(channel string, data []byte, srcTS time.Time) {
	now := time.Now().UTC()

	if !srcTS.IsZero() {
		if ms := float64(now.Sub(srcTS).Microseconds()) / 1000.0; ms >= 0 {
			b.hub.Latency.Record(ms)
		}
	}

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq
	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayDepth)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+160), channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if b.hub.prom != nil {
				b.hub.prom.WSMessagesDropped.Inc()
			}
		}
	}
}

// appendEnvelope hand-crafts
// {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":M}.
// data must already be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
