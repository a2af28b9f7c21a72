package services

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"

	"solroll-backend/internal/hashutil"
	"solroll-backend/internal/ledger"
)

// SlotProducer is the ledger's clock. Each tick closes the current slot,
// publishes its hash into the slot hash history and opens the next one, so a
// slot's hash is never visible while that slot is current. Hashes are keyed
// with a secret, so the published chain does not reveal the next link.
type SlotProducer struct {
	redis       *RedisService
	interval    time.Duration
	key         [32]byte
	broadcaster Broadcaster
	log         logrus.FieldLogger
}

func NewSlotProducer(redisService *RedisService, interval time.Duration, secret string, log logrus.FieldLogger) *SlotProducer {
	return &SlotProducer{
		redis:       redisService,
		interval:    interval,
		key:         SlotKey(secret),
		broadcaster: nopBroadcaster{},
		log:         log,
	}
}

func (p *SlotProducer) SetBroadcaster(b Broadcaster) {
	p.broadcaster = b
}

func (p *SlotProducer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot, err := p.Step(ctx)
			if err != nil {
				p.log.WithError(err).Warn("Failed to advance slot")
				continue
			}
			p.broadcaster.BroadcastSlot(slot)
		}
	}
}

// Step closes the current slot and returns the new current slot.
func (p *SlotProducer) Step(ctx context.Context) (uint64, error) {
	sv, err := p.redis.UpdateSysvars(ctx, func(sv *ledger.Sysvars) error {
		hashes, err := hashutil.DecodeSlotHashes(sv.SlotHashes)
		if err != nil {
			return err
		}
		var prev hashutil.Hash
		if len(hashes) > 0 {
			prev = hashes[0].Hash
		}
		closed := sv.Slot
		hashes = hashes.Push(closed, NextSlotHash(p.key, prev, closed))
		sv.SlotHashes = hashes.Encode()
		sv.Slot = closed + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.log.WithField("slot", sv.Slot).Trace("Slot advanced")
	return sv.Slot, nil
}

// SlotKey derives the hash chain key from the configured slot secret.
func SlotKey(secret string) [32]byte {
	return blake3.Sum256([]byte(secret))
}

// NextSlotHash chains a slot's hash onto its predecessor's under key.
func NextSlotHash(key [32]byte, prev hashutil.Hash, slot uint64) hashutil.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)

	h := blake3.New(hashutil.HashLen, key[:])
	h.Write(prev[:])
	h.Write(buf[:])

	var out hashutil.Hash
	h.Sum(out[:0])
	return out
}
