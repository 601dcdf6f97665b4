package ring

import (
	"sort"

	"github.com/ehrlich-b/bqlog/internal/block"
)

type recoveredRun struct {
	first      uint32
	blockCount uint32
	payloadLen uint32
	commitSeq  uint64
}

// recover walks the backing array left by a prior process, restoring
// in-memory block heads and replaying committed chunks into the commit
// queue in their original commit order. Blocks left mid-reservation
// (the process died between Reserve and Commit) and blocks already
// marked invalid are reset to unused: a reservation with no matching
// commit carries no recoverable payload.
func (b *Buffer) recover() error {
	total := uint32(len(b.blocks))
	var runs []recoveredRun

	for i := uint32(0); i < total; {
		status, blockCount, payloadLen, commitSeq := readPersistedHeader(b.data, i, b.blockSize)
		if blockCount == 0 {
			blockCount = 1
		}

		if status == block.StatusUsed {
			b.blocks[i].Head.Restore(block.StatusUsed, blockCount, payloadLen)
			runs = append(runs, recoveredRun{first: i, blockCount: blockCount, payloadLen: payloadLen, commitSeq: commitSeq})
			for j := uint32(1); j < blockCount && i+j < total; j++ {
				b.blocks[i+j].Head.Restore(block.StatusReserved, blockCount, 0)
			}
		} else {
			for j := uint32(0); j < blockCount && i+j < total; j++ {
				b.blocks[i+j].Head.Restore(block.StatusUnused, 0, 0)
				writePersistedHeader(b.data, i+j, b.blockSize, block.StatusUnused, 0, 0, 0)
			}
		}

		i += blockCount
	}

	sort.Slice(runs, func(a, c int) bool { return runs[a].commitSeq < runs[c].commitSeq })

	var maxSeq uint64
	for _, r := range runs {
		if r.commitSeq > maxSeq {
			maxSeq = r.commitSeq
		}
		if !b.commitQ.tryPush(r.first) {
			b.observer.ObserveDrop("recovery_commit_queue_full")
			continue
		}
		b.recoveredChunks.Add(1)
	}
	b.writeSeq.Store(maxSeq)

	return nil
}
