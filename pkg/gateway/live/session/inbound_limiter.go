package session

import "time"

// tokenBucket is a fixed-rate bucket refilled from elapsed wall time.
type tokenBucket struct {
	rate   int64 // tokens per second; 0 disables the bucket
	max    int64
	tokens int64
}

func (b *tokenBucket) refill(elapsed time.Duration) {
	if b.rate == 0 {
		return
	}
	add := elapsed.Nanoseconds() * b.rate / int64(time.Second)
	if add <= 0 {
		return
	}
	b.tokens = min(b.tokens+add, b.max)
}

func (b *tokenBucket) take(n int64) bool {
	if b.rate == 0 {
		return true
	}
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// inboundAudioLimiter bounds the pace of inbound media. Real telephony
// streams deliver audio at wall-clock rate; a stream pushing much
// faster than real time is misbehaving and its excess frames are
// dropped rather than buffered.
type inboundAudioLimiter struct {
	now        func() time.Time
	frames     tokenBucket
	bytes      tokenBucket
	lastRefill time.Time
}

func newInboundAudioLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *inboundAudioLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	burst := int64(burstSeconds)
	if burst <= 0 {
		burst = 1
	}

	l := &inboundAudioLimiter{now: now, lastRefill: now()}
	if fps > 0 {
		l.frames = tokenBucket{rate: int64(fps), max: int64(fps) * burst, tokens: int64(fps) * burst}
	}
	if bps > 0 {
		l.bytes = tokenBucket{rate: bps, max: bps * burst, tokens: bps * burst}
	}
	return l
}

// Allow charges one frame of frameBytes against both buckets. A frame
// is admitted only when both have capacity; a rejected frame charges
// neither.
func (l *inboundAudioLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	now := l.now()
	if elapsed := now.Sub(l.lastRefill); elapsed > 0 {
		l.frames.refill(elapsed)
		l.bytes.refill(elapsed)
		l.lastRefill = now
	}

	if frameBytes < 0 {
		frameBytes = 0
	}
	if l.frames.rate > 0 && l.frames.tokens < 1 {
		return false
	}
	if !l.bytes.take(int64(frameBytes)) {
		return false
	}
	l.frames.take(1)
	return true
}
